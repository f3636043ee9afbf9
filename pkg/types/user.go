package types

import "time"

// User is a control-plane account. The token is an opaque session secret
// with an absolute UTC expiry; it is never a claims-bearing token.
type User struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Password    string     `json:"-"` // bcrypt hash, never serialized
	Token       *string    `json:"-"`
	TokenExpire *time.Time `json:"tokenExpire,omitempty"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
	LastAddress string     `json:"lastAddress,omitempty"`
	Permission  int        `json:"permission"`
}

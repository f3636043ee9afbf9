package api

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

const (
	sessionCookie = "swi_session"
	sessionTTL    = 336 * time.Hour // two weeks
)

// userKey is the echo context key the session middleware stores the
// authenticated user under.
const userKey = "swi.user"

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// sessionMiddleware resolves the session cookie to a user row, rejecting
// missing and expired tokens alike.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookie)
		if err != nil {
			return s.fail(c, errs.ErrInvalidCredentials)
		}
		user, err := s.core.Store().GetUserByToken(c.Request().Context(), cookie.Value, time.Now())
		if err != nil {
			return s.fail(c, err)
		}
		c.Set(userKey, user)
		return next(c)
	}
}

func currentUser(c echo.Context) *types.User {
	u, _ := c.Get(userKey).(*types.User)
	return u
}

type loginRequest struct {
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// login verifies the password, rotates the session token and sets the cookie.
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, errs.ErrInvalidCredentials)
	}
	ctx := c.Request().Context()

	user, err := s.core.Store().GetUserByName(ctx, req.Name)
	if err != nil {
		// Same response for unknown user and wrong password.
		return s.fail(c, errs.ErrInvalidCredentials)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return s.fail(c, errs.ErrInvalidCredentials)
	}

	token, err := newToken()
	if err != nil {
		return s.fail(c, err)
	}
	now := time.Now()
	expire := now.Add(sessionTTL)
	if err := s.core.Store().UpdateSession(ctx, user.ID, token, expire, now, c.RealIP()); err != nil {
		return s.fail(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expire,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.log.Info().Str("user", user.Name).Str("addr", c.RealIP()).Msg("login")
	return c.JSON(http.StatusOK, map[string]any{"result": true, "user": user})
}

// loginProbe reports whether the presented cookie is still a valid session.
func (s *Server) loginProbe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"result": true, "user": currentUser(c)})
}

func (s *Server) listUsers(c echo.Context) error {
	users, err := s.core.Store().ListUsers(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

type addUserRequest struct {
	Name       string `json:"name" form:"name"`
	Password   string `json:"password" form:"password"`
	Permission int    `json:"permission" form:"permission"`
}

func (s *Server) addUser(c echo.Context) error {
	var req addUserRequest
	if err := c.Bind(&req); err != nil || req.Name == "" || req.Password == "" {
		return s.fail(c, errs.ErrInvalidCredentials.WithDetail("name and password required"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return s.fail(c, err)
	}
	user, err := s.core.Store().CreateUser(c.Request().Context(), req.Name, string(hash), req.Permission)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) removeUser(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return s.fail(c, errs.ErrUserNotFound.WithDetail("name required"))
	}
	if err := s.core.Store().RemoveUser(c.Request().Context(), name); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": true})
}

package types

import "time"

// ServerBuild is one downloadable build of a server jar. Some upstreams are
// lazy: DownloadURL and JavaMajorVersion materialize on fetch_info.
type ServerBuild struct {
	MCVersion        string     `json:"mcVersion"`
	Build            string     `json:"build"`
	DownloadURL      string     `json:"downloadURL,omitempty"`
	Filename         string     `json:"filename,omitempty"`
	JavaMajorVersion int        `json:"javaMajorVersion,omitempty"`
	Updated          *time.Time `json:"updated,omitempty"`
	Recommended      bool       `json:"recommended"`
	RequireBuild     bool       `json:"requireBuild"`
	Loaded           bool       `json:"loaded"`
}

// ServerVersion is one upstream Minecraft version a type supports.
type ServerVersion struct {
	Version    string `json:"version"`
	BuildCount *int   `json:"buildCount,omitempty"`
}

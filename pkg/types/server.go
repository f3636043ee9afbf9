package types

// ServerState represents the lifecycle state of a managed server process.
type ServerState string

const (
	StateUnknown  ServerState = "UNKNOWN"
	StateStopped  ServerState = "STOPPED"
	StateStarting ServerState = "STARTING"
	StateStarted  ServerState = "STARTED"
	StateRunning  ServerState = "RUNNING"
	StateStopping ServerState = "STOPPING"
	StateBuild    ServerState = "BUILD"
)

// IsRunning reports whether a child process may be alive in this state.
func (s ServerState) IsRunning() bool {
	return s != StateStopped && s != StateUnknown
}

// Rank orders states for display: STOPPED < STOPPING < STARTING < STARTED/RUNNING.
func (s ServerState) Rank() int {
	switch s {
	case StateStopped:
		return 0
	case StateStopping:
		return 1
	case StateStarting:
		return 2
	case StateStarted, StateRunning:
		return 3
	default:
		return -1
	}
}

// ServerType tags a server directory with the flavor of jar it runs.
type ServerType string

const (
	TypeUnknown       ServerType = "unknown"
	TypeCustom        ServerType = "custom"
	TypeVanilla       ServerType = "vanilla"
	TypeSpigot        ServerType = "spigot"
	TypePaper         ServerType = "paper"
	TypeFolia         ServerType = "folia"
	TypePurpur        ServerType = "purpur"
	TypeForge         ServerType = "forge"
	TypeNeoForge      ServerType = "neoforge"
	TypeFabric        ServerType = "fabric"
	TypeQuilt         ServerType = "quilt"
	TypeMohist        ServerType = "mohist"
	TypeBanner        ServerType = "banner"
	TypeYouer         ServerType = "youer"
	TypeBungeeCord    ServerType = "bungeecord"
	TypeWaterfall     ServerType = "waterfall"
	TypeVelocity      ServerType = "velocity"
	TypeSpongeVanilla ServerType = "spongevanilla"
)

// TypeMeta carries per-type metadata: the canonical in-game stop command and
// whether the type is a proxy or a modded runtime.
type TypeMeta struct {
	StopCommand string `json:"stopCommand"`
	Proxy       bool   `json:"proxy"`
	Modded      bool   `json:"modded"`
}

var typeMeta = map[ServerType]TypeMeta{
	TypeVanilla:       {StopCommand: "stop"},
	TypeSpigot:        {StopCommand: "stop"},
	TypePaper:         {StopCommand: "stop"},
	TypeFolia:         {StopCommand: "stop"},
	TypePurpur:        {StopCommand: "stop"},
	TypeForge:         {StopCommand: "stop", Modded: true},
	TypeNeoForge:      {StopCommand: "stop", Modded: true},
	TypeFabric:        {StopCommand: "stop", Modded: true},
	TypeQuilt:         {StopCommand: "stop", Modded: true},
	TypeMohist:        {StopCommand: "stop", Modded: true},
	TypeBanner:        {StopCommand: "stop", Modded: true},
	TypeYouer:         {StopCommand: "stop", Modded: true},
	TypeBungeeCord:    {StopCommand: "end", Proxy: true},
	TypeWaterfall:     {StopCommand: "end", Proxy: true},
	TypeVelocity:      {StopCommand: "end", Proxy: true},
	TypeSpongeVanilla: {StopCommand: "stop"},
}

// Meta returns the per-type metadata. UNKNOWN and CUSTOM report an empty stop
// command so the user-configured value always wins for them.
func (t ServerType) Meta() TypeMeta {
	if m, ok := typeMeta[t]; ok {
		return m
	}
	return TypeMeta{}
}

// ParseServerType maps a config tag to a known type; unrecognized tags map
// to UNKNOWN rather than failing.
func ParseServerType(tag string) ServerType {
	if tag == string(TypeCustom) {
		return TypeCustom
	}
	if _, ok := typeMeta[ServerType(tag)]; ok {
		return ServerType(tag)
	}
	return TypeUnknown
}

// AllServerTypes lists the types a jar downloader exists for.
func AllServerTypes() []ServerType {
	return []ServerType{
		TypeVanilla, TypePaper, TypeFolia, TypeWaterfall, TypeVelocity,
		TypePurpur, TypeFabric, TypeQuilt, TypeSpigot, TypeForge,
		TypeNeoForge, TypeMohist, TypeBanner, TypeYouer, TypeBungeeCord,
		TypeSpongeVanilla,
	}
}

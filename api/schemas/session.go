// api/schemas/session.go
package schemas

import "fmt"

// BackendKind selects how a browser session is constructed.
type BackendKind string

const (
	// BackendLocal launches a browser process on this host.
	BackendLocal BackendKind = "local"
	// BackendRemote attaches to a browser on a remote execution grid.
	BackendRemote BackendKind = "remote"
	// BackendHybrid tries BackendRemote and falls back to BackendLocal.
	BackendHybrid BackendKind = "hybrid"
)

// ParseBackendKind validates a configured backend name.
func ParseBackendKind(s string) (BackendKind, error) {
	switch k := BackendKind(s); k {
	case BackendLocal, BackendRemote, BackendHybrid:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported session backend %q", s)
	}
}

// SessionState is the lifecycle state of a browser session. Transitions only
// move forward: Created, then Active, then Quit.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionActive
	SessionQuit
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionActive:
		return "active"
	case SessionQuit:
		return "quit"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Credential holds a username and password pair.
type Credential struct {
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
}

// Empty reports whether either half of the pair is missing.
func (c Credential) Empty() bool {
	return c.Username == "" || c.Password == ""
}

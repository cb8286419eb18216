// internal/login/credentials.go
package login

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/config"
)

// ErrCredentials marks a credential lookup that cannot succeed without a
// configuration change.
var ErrCredentials = errors.New("credentials unavailable")

// CredentialSource resolves the login for a role in an environment.
type CredentialSource interface {
	Lookup(ctx context.Context, env string, role schemas.RoleID) (schemas.Credential, error)
}

func notFound(source, env string, role schemas.RoleID) error {
	return fmt.Errorf("%w: %s has no credentials for role %s in environment %q", ErrCredentials, source, role, env)
}

// ConfigCredentials reads environments.<env>.roles.<role> from the loaded
// configuration.
type ConfigCredentials struct {
	envs map[string]config.EnvironmentConfig
}

func NewConfigCredentials(cfg config.Config) *ConfigCredentials {
	return &ConfigCredentials{envs: cfg.Environments}
}

func (c *ConfigCredentials) Lookup(_ context.Context, env string, role schemas.RoleID) (schemas.Credential, error) {
	e, ok := c.envs[strings.ToLower(env)]
	if !ok {
		return schemas.Credential{}, notFound("config", env, role)
	}
	cred, ok := e.Roles[string(role)]
	if !ok || cred.Empty() {
		return schemas.Credential{}, notFound("config", env, role)
	}
	return cred, nil
}

// FileCredentials reads a YAML document of the form
//
//	qa:
//	  nurse: {username: nina, password: ...}
//
// The file is loaded on first lookup.
type FileCredentials struct {
	path string

	once  sync.Once
	table map[string]map[string]schemas.Credential
	err   error
}

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (f *FileCredentials) load() {
	path, err := homedir.Expand(f.path)
	if err != nil {
		f.err = fmt.Errorf("%w: expanding %q: %w", ErrCredentials, f.path, err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		f.err = fmt.Errorf("%w: %w", ErrCredentials, err)
		return
	}
	var raw map[string]map[string]schemas.Credential
	if err := yaml.Unmarshal(data, &raw); err != nil {
		f.err = fmt.Errorf("%w: parsing %s: %w", ErrCredentials, path, err)
		return
	}
	f.table = make(map[string]map[string]schemas.Credential, len(raw))
	for env, roles := range raw {
		f.table[strings.ToLower(env)] = roles
	}
}

func (f *FileCredentials) Lookup(_ context.Context, env string, role schemas.RoleID) (schemas.Credential, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return schemas.Credential{}, f.err
	}
	cred, ok := f.table[strings.ToLower(env)][string(role)]
	if !ok || cred.Empty() {
		return schemas.Credential{}, notFound(f.path, env, role)
	}
	return cred, nil
}

// EnvCredentials reads <PREFIX>_<ENV>_<ROLE>_USERNAME and _PASSWORD.
type EnvCredentials struct {
	prefix string
	lookup func(string) (string, bool)
}

func NewEnvCredentials(prefix string) *EnvCredentials {
	return &EnvCredentials{prefix: prefix, lookup: os.LookupEnv}
}

// Key returns the variable name holding field ("USERNAME" or "PASSWORD").
func (e *EnvCredentials) Key(env string, role schemas.RoleID, field string) string {
	parts := []string{e.prefix, env, string(role), field}
	key := strings.Join(parts, "_")
	key = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(key)
	return strings.ToUpper(key)
}

func (e *EnvCredentials) Lookup(_ context.Context, env string, role schemas.RoleID) (schemas.Credential, error) {
	user, _ := e.lookup(e.Key(env, role, "USERNAME"))
	pass, _ := e.lookup(e.Key(env, role, "PASSWORD"))
	cred := schemas.Credential{Username: user, Password: pass}
	if cred.Empty() {
		return schemas.Credential{}, notFound("environment", env, role)
	}
	return cred, nil
}

// ChainCredentials returns the first successful lookup.
type ChainCredentials []CredentialSource

func (c ChainCredentials) Lookup(ctx context.Context, env string, role schemas.RoleID) (schemas.Credential, error) {
	var errs error
	for _, src := range c {
		cred, err := src.Lookup(ctx, env, role)
		if err == nil {
			return cred, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return schemas.Credential{}, notFound("empty chain", env, role)
	}
	return schemas.Credential{}, errs
}

// SourcesFromConfig chains the environment, the optional credentials file and
// the configuration, in that order.
func SourcesFromConfig(cfg config.Config, envPrefix string) ChainCredentials {
	chain := ChainCredentials{NewEnvCredentials(envPrefix)}
	if cfg.Login.CredentialsFile != "" {
		chain = append(chain, NewFileCredentials(cfg.Login.CredentialsFile))
	}
	return append(chain, NewConfigCredentials(cfg))
}

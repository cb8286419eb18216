// internal/login/credentials_test.go
package login_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/config"
	"github.com/xkilldash9x/wardrunner/internal/login"
)

var _ login.CredentialSource = login.ChainCredentials(nil)

func TestConfigCredentials(t *testing.T) {
	cfg := *config.NewDefaultConfig()
	cfg.Environments = map[string]config.EnvironmentConfig{
		"qa": {Roles: map[string]schemas.Credential{
			"nurse":    {Username: "nina", Password: "pw"},
			"provider": {Username: "pat"},
		}},
	}
	src := login.NewConfigCredentials(cfg)
	ctx := context.Background()

	cred, err := src.Lookup(ctx, "QA", schemas.RoleNurse)
	require.NoError(t, err)
	assert.Equal(t, "nina", cred.Username)

	_, err = src.Lookup(ctx, "qa", schemas.RoleProvider)
	assert.ErrorIs(t, err, login.ErrCredentials, "half a credential is no credential")

	_, err = src.Lookup(ctx, "staging", schemas.RoleNurse)
	assert.ErrorIs(t, err, login.ErrCredentials)
}

func TestFileCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
QA:
  admin_a:
    username: alice
    password: hunter2
`), 0o600))
	src := login.NewFileCredentials(path)
	ctx := context.Background()

	cred, err := src.Lookup(ctx, "qa", schemas.RoleAdminA)
	require.NoError(t, err)
	assert.Equal(t, schemas.Credential{Username: "alice", Password: "hunter2"}, cred)

	_, err = src.Lookup(ctx, "qa", schemas.RoleAdminB)
	assert.ErrorIs(t, err, login.ErrCredentials)

	_, err = login.NewFileCredentials(filepath.Join(t.TempDir(), "missing.yaml")).Lookup(ctx, "qa", schemas.RoleAdminA)
	assert.ErrorIs(t, err, login.ErrCredentials)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileCredentialsRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qa: [not, a, map"), 0o600))

	_, err := login.NewFileCredentials(path).Lookup(context.Background(), "qa", schemas.RoleNurse)
	assert.ErrorIs(t, err, login.ErrCredentials)
	assert.ErrorContains(t, err, "parsing")
}

func TestEnvCredentials(t *testing.T) {
	src := login.NewEnvCredentials("WARDRUNNER")
	assert.Equal(t, "WARDRUNNER_QA_USER_A_USERNAME", src.Key("qa", schemas.RoleUserA, "USERNAME"))
	assert.Equal(t, "WARDRUNNER_PRE_PROD_NURSE_PASSWORD", src.Key("pre-prod", schemas.RoleNurse, "PASSWORD"))

	t.Setenv("WARDRUNNER_QA_USER_A_USERNAME", "ursula")
	t.Setenv("WARDRUNNER_QA_USER_A_PASSWORD", "pw")

	cred, err := src.Lookup(context.Background(), "qa", schemas.RoleUserA)
	require.NoError(t, err)
	assert.Equal(t, "ursula", cred.Username)

	_, err = src.Lookup(context.Background(), "qa", schemas.RoleUserB)
	assert.ErrorIs(t, err, login.ErrCredentials)
}

func TestChainCredentials(t *testing.T) {
	ctx := context.Background()
	cfg := *config.NewDefaultConfig()
	cfg.Environments = map[string]config.EnvironmentConfig{
		"qa": {Roles: map[string]schemas.Credential{"nurse": {Username: "from-config", Password: "pw"}}},
	}

	t.Run("Earlier sources win", func(t *testing.T) {
		t.Setenv("WARDRUNNER_QA_NURSE_USERNAME", "from-env")
		t.Setenv("WARDRUNNER_QA_NURSE_PASSWORD", "pw")

		cred, err := login.SourcesFromConfig(cfg, "WARDRUNNER").Lookup(ctx, "qa", schemas.RoleNurse)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cred.Username)
	})

	t.Run("Falls through to config", func(t *testing.T) {
		cred, err := login.SourcesFromConfig(cfg, "WARDRUNNER").Lookup(ctx, "qa", schemas.RoleNurse)
		require.NoError(t, err)
		assert.Equal(t, "from-config", cred.Username)
	})

	t.Run("All sources failing", func(t *testing.T) {
		_, err := login.SourcesFromConfig(cfg, "WARDRUNNER").Lookup(ctx, "qa", schemas.RoleProvider)
		assert.ErrorIs(t, err, login.ErrCredentials)
	})

	t.Run("Empty chain", func(t *testing.T) {
		_, err := login.ChainCredentials{}.Lookup(ctx, "qa", schemas.RoleNurse)
		assert.ErrorIs(t, err, login.ErrCredentials)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outreach.config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Models.Prospector)
	assert.Equal(t, DefaultLightModel, cfg.Models.Finder)
	assert.Equal(t, DefaultModel, cfg.Models.Mailer)
	assert.Equal(t, 3, cfg.Policy.MaxForcedContinuations)
	assert.Equal(t, 60, cfg.Policy.ResetAfterMessages)
	assert.Equal(t, 8, cfg.Policy.ToolWorkers)
	assert.Equal(t, "outreach.db", cfg.DBPath)
	assert.Equal(t, "sk-test", cfg.Keys.Anthropic)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	path := writeConfig(t, `{
		"models": {"finder": "gpt-5-mini"},
		"policy": {"max_forced_continuations": 1, "max_resets": 2, "reset_after_messages": 40, "verify_workers": 2},
		"db_path": "custom.db"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-mini", cfg.Models.Finder)
	assert.Equal(t, 40, cfg.Policy.ResetAfterMessages)
	assert.Equal(t, "custom.db", cfg.DBPath)
}

func TestEnvOverridesFileKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("HUNTER_API_KEY", "hunter-env")
	path := writeConfig(t, `{"keys": {"anthropic": "from-file", "findymail": "fm-file"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Keys.Anthropic)
	assert.Equal(t, "hunter-env", cfg.Keys.Hunter)
	// File values survive when no env var shadows them.
	assert.Equal(t, "fm-file", cfg.Keys.Findymail)
}

func TestLoadRequiresAModelKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model API key")
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := Default()
	cfg.Keys.Anthropic = "sk-test"

	cfg.Policy.ResetAfterMessages = 2
	assert.Error(t, cfg.Validate())

	cfg.Policy.ResetAfterMessages = 60
	cfg.Policy.VerifyWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg.Policy.VerifyWorkers = 5
	cfg.Policy.ToolWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg.Policy.ToolWorkers = 8
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	path := writeConfig(t, "{not json")

	_, err := Load(path)
	require.Error(t, err)
}

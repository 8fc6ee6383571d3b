package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigNormalizes(t *testing.T) {
	path := writeConfig(t, `
[engine]
min_confidence = 1.5
max_patterns = -1
typing_pause_ms = 900
languages = []
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Engine.MinConfidence)
	assert.Equal(t, 1000, cfg.Engine.MaxPatterns)
	assert.Equal(t, 900, cfg.Engine.TypingPauseMs)
	assert.Equal(t, DefaultLanguages(), cfg.Engine.Languages)
}

func TestLoadConfigRecoversPartially(t *testing.T) {
	path := writeConfig(t, `
[engine]
min_confidence = "high"
max_patterns = 50

[server]
max_line_length = 200
metrics_addr = "127.0.0.1:9464"

[report]
max_complexity = 8
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Engine.MinConfidence)
	assert.Equal(t, 50, cfg.Engine.MaxPatterns)
	assert.Equal(t, 200, cfg.Server.MaxLineLength)
	assert.Equal(t, "127.0.0.1:9464", cfg.Server.MetricsAddr)
	assert.Equal(t, 8.0, cfg.Report.MaxComplexity)
}

func TestLoadConfigGarbage(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "this is [ not toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	conf, pause, data := 0.6, 500, "/tmp/cs"
	cfg.Apply(Overrides{MinConfidence: &conf, TypingPauseMs: &pause, DataPath: &data})

	assert.Equal(t, 0.6, cfg.Engine.MinConfidence)
	assert.Equal(t, 500, cfg.Engine.TypingPauseMs)
	assert.Equal(t, "/tmp/cs", cfg.Store.Path)
	assert.Equal(t, 20, cfg.Engine.MinFragmentLength, "unset overrides keep the loaded value")

	bad := 0
	cfg.Apply(Overrides{MaxPatterns: &bad})
	assert.Equal(t, 1000, cfg.Engine.MaxPatterns)
}

func TestDurationsAndLanguages(t *testing.T) {
	e := DefaultConfig().Engine
	assert.Equal(t, "1.5s", e.TypingPause().String())
	assert.Equal(t, "1s", e.PollInterval().String())
	assert.Equal(t, "750ms", e.IdleAfter().String())
	assert.True(t, e.SupportsLanguage("typescriptreact"))
	assert.False(t, e.SupportsLanguage("python"))
}

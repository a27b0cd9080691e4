package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineIsValid(t *testing.T) {
	p := DefaultPipeline()
	require.NoError(t, p.Validate())
	assert.Equal(t, 2.0, p.LoiterSpeedKn)
	assert.Equal(t, 4*time.Hour, p.LoiterMinDwell)
	assert.Equal(t, time.Hour, p.LoiterMaxGap)
	assert.Equal(t, 0.75, p.NameMatchThreshold)
	assert.Equal(t, 20*time.Second, p.PlannerTimeout)
}

func TestLoadServerConfigEnv(t *testing.T) {
	t.Setenv("AISQ_CONFIG", "")
	t.Setenv("DB_DSN", "postgres://localhost/ais")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AISQ_LOITER_SPEED_KN", "1.5")
	t.Setenv("AISQ_LOITER_MIN_DWELL_HOURS", "6")
	t.Setenv("AISQ_FORBIDDEN_KEYWORDS", "Drop, purge")
	t.Setenv("AISQ_ANCHOR_TO_DATA", "true")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9020", cfg.HTTPAddr)
	assert.Equal(t, 1.5, cfg.Pipeline.LoiterSpeedKn)
	assert.Equal(t, 6*time.Hour, cfg.Pipeline.LoiterMinDwell)
	assert.Equal(t, []string{"drop", "purge"}, cfg.Pipeline.ForbiddenKeywords)
	assert.True(t, cfg.Pipeline.AnchorToData)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadServerConfigRequiresDSN(t *testing.T) {
	t.Setenv("AISQ_CONFIG", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	_, err := LoadServerConfig()
	require.Error(t, err)
}

func TestLoadServerConfigTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aisq.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr = ":7000"

[store]
driver = "sqlite"
sqlite_path = "/tmp/ais.db"

[planner]
provider = "ollama"
model = "llama3.1"

[loitering]
min_dwell_hours = 2.5
max_gap_minutes = 30
`), 0o600))
	t.Setenv("AISQ_CONFIG", path)
	t.Setenv("AISQ_HTTP_ADDR", "")
	t.Setenv("AISQ_DB_DRIVER", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ollama", cfg.Planner.Provider)
	assert.Equal(t, 150*time.Minute, cfg.Pipeline.LoiterMinDwell)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.LoiterMaxGap)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2.0, cfg.Pipeline.LoiterSpeedKn)
}

func TestLoadCLIConfigYAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aisq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
  sqlite_path: ais.db
planner:
  mode: remote
  remote_url: http://planner:8080/
query:
  default_limit: 25
`), 0o600))
	t.Setenv("AISQ_CONFIG", path)
	t.Setenv("AISQ_PLANNER_URL", "")
	t.Setenv("AISQ_DEFAULT_LIMIT", "10")

	cfg, err := LoadCLIConfig()
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.Planner.Mode)
	assert.Equal(t, "http://planner:8080", cfg.Planner.RemoteURL)
	assert.Equal(t, 10, cfg.Pipeline.DefaultLimit)
}

func TestUnsupportedConfigExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aisq.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))
	_, err := loadFile(path)
	require.Error(t, err)
}

func TestPipelineValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"zero speed", func(c *PipelineConfig) { c.LoiterSpeedKn = 0 }},
		{"no workers", func(c *PipelineConfig) { c.LoiterWorkers = 0 }},
		{"default over max", func(c *PipelineConfig) { c.DefaultLookback = c.MaxLookback + time.Hour }},
		{"limit inverted", func(c *PipelineConfig) { c.MaxLimit = c.DefaultLimit - 1 }},
		{"threshold above one", func(c *PipelineConfig) { c.NameMatchThreshold = 1.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultPipeline()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

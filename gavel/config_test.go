package gavel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
http_addr = ":9090"

[db]
host = "db.internal"
port = 5432
user = "gavel"
database = "gavel"

[engine]
soft_close_window_secs = 15
default_increment = 500

[[engine.increment_tiers]]
threshold = 0
step = 500

[[engine.increment_tiers]]
threshold = 20000
step = 2500
`)

	cfg, err := LoadConfig(path)
	assert.Nil(t, err)

	check.Equal(t, ":9090", cfg.Server.HTTPAddr)
	check.Equal(t, "db.internal", cfg.DB.Host)
	check.Equal(t, 15*time.Second, cfg.Engine.SoftCloseWindow())
	check.Equal(t, int64(500), cfg.Engine.DefaultIncrement)
	assert.Equal(t, 2, len(cfg.Engine.IncrementTiers))
	check.Equal(t, int64(20000), cfg.Engine.IncrementTiers[1].Threshold)
	check.Equal(t, int64(2500), cfg.Engine.IncrementTiers[1].Step)

	// Unset fields fall back to defaults.
	check.Equal(t, ":8081", cfg.Server.WSAddr)
	check.Equal(t, "LOT_EVENTS", cfg.NATS.Stream)
	check.Equal(t, 60*time.Second, cfg.Engine.SoftCloseExtension())
	check.Equal(t, 2*time.Second, cfg.Engine.LockTimeout())
	check.Equal(t, 5*time.Second, cfg.Engine.SweepInterval())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.NotNil(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, "[server\nhttp_addr=")
	_, err := LoadConfig(path)
	assert.NotNil(t, err)
}

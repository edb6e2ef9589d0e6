package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	seen []Config
}

func (r *recordingSubscriber) ApplyConfig(cfg Config) {
	r.seen = append(r.seen, cfg)
}

func TestLoad_CreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(15), cfg.Modules.Leveling.MessageXP)
	assert.Equal(t, int64(10), cfg.Modules.Leveling.VoiceXP)
	assert.Equal(t, 60, cfg.Modules.Leveling.CooldownSeconds)
	assert.Equal(t, 24.0, cfg.Modules.Polls.DefaultDuration)
	assert.False(t, cfg.Modules.Tickets.AutoClose.Enabled)
	assert.Equal(t, 24, cfg.Modules.Tickets.AutoClose.Time)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written to disk")
}

func TestParse_KeepsDefaultsForOmittedKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
modules:
  leveling:
    messageXP: 20
    roleRewards:
      - level: 5
        roleId: "r5"
  polls:
    allowMultiple: true
`))
	require.NoError(t, err)
	assert.Equal(t, int64(20), cfg.Modules.Leveling.MessageXP)
	assert.Equal(t, int64(10), cfg.Modules.Leveling.VoiceXP)
	assert.True(t, cfg.Modules.Polls.AllowMultiple)
	assert.Equal(t, []RoleReward{{Level: 5, RoleID: "r5"}}, cfg.Modules.Leveling.RoleRewards)
}

func TestSave_RoundTripsBoosters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cfg := Default()
	cfg.Modules.Leveling.XPBoosters = []XPBooster{{Multiplier: 2, Duration: time.Hour, RoleID: "vip", ExpiresAt: expires}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Modules.Leveling.XPBoosters, 1)
	b := loaded.Modules.Leveling.XPBoosters[0]
	assert.Equal(t, 2.0, b.Multiplier)
	assert.Equal(t, time.Hour, b.Duration)
	assert.Equal(t, "vip", b.RoleID)
	assert.True(t, expires.Equal(b.ExpiresAt))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "missing token must be reported")

	cfg.Bot.Token = "token"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	cfg.Modules.Polls.DefaultDuration = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "defaultDuration")
}

func TestWithEnv_OverridesSecrets(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("DATABASE_URL", "postgres://bot@localhost/bot")
	t.Setenv("API_KEY", "k")

	cfg := WithEnv(Default())
	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "k", cfg.API.APIKey)
}

func TestStore_UpdatePersistsAndBroadcasts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	store, err := Open(path)
	require.NoError(t, err)

	sub := &recordingSubscriber{}
	store.Subscribe(sub)

	err = store.Update(func(cfg *Config) {
		cfg.Modules.Polls.RequireRole = "voter"
	})
	require.NoError(t, err)

	require.Len(t, sub.seen, 1)
	assert.Equal(t, "voter", sub.seen[0].Modules.Polls.RequireRole)
	assert.Equal(t, "voter", store.Current().Modules.Polls.RequireRole)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "voter", reloaded.Modules.Polls.RequireRole)
}

func TestStore_EnvSecretsAreNotPersisted(t *testing.T) {
	t.Setenv("BOT_TOKEN", "secret")
	path := filepath.Join(t.TempDir(), "config.yml")
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Update(func(cfg *Config) { cfg.Bot.Status = "hi" }))
	assert.Equal(t, "secret", store.Current().Bot.Token)

	onDisk, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, onDisk.Bot.Token)
}

func TestStore_CurrentIsACopy(t *testing.T) {
	cfg := Default()
	cfg.Modules.Leveling.RoleRewards = []RoleReward{{Level: 1, RoleID: "a"}}
	store := NewStore("", cfg)

	got := store.Current()
	got.Modules.Leveling.RoleRewards[0].RoleID = "mutated"

	assert.Equal(t, "a", store.Current().Modules.Leveling.RoleRewards[0].RoleID)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NEON_DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.SettlementEnabled)
	assert.Equal(t, 15*time.Minute, cfg.SettlementInterval)
	assert.Equal(t, 10*time.Second, cfg.StartupDelay)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, "moneyline", cfg.Market)
	assert.Equal(t, []string{"NBA", "NFL"}, cfg.Sports)
	assert.Equal(t, 3, cfg.ScoreLookbackDays)
	assert.Equal(t, "full_name", cfg.BDLTeamName)
	assert.Equal(t, 8000, cfg.APIPort)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
	t.Setenv("SETTLEMENT_ENABLED", "false")
	t.Setenv("SETTLEMENT_INTERVAL_MINUTES", "5")
	t.Setenv("SETTLEMENT_STARTUP_DELAY_SECONDS", "0")
	t.Setenv("SETTLEMENT_SPORTS", " nba ,")
	t.Setenv("BDL_TEAM_NAME", "name")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.SettlementEnabled)
	assert.Equal(t, 5*time.Minute, cfg.SettlementInterval)
	assert.Equal(t, time.Duration(0), cfg.StartupDelay)
	assert.Equal(t, []string{"NBA"}, cfg.Sports)
	assert.Equal(t, "name", cfg.BDLTeamName)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_Validation(t *testing.T) {
	tests := map[string]struct {
		key, value string
	}{
		"zero interval":     {"SETTLEMENT_INTERVAL_MINUTES", "0"},
		"unknown sport":     {"SETTLEMENT_SPORTS", "NBA,CURLING"},
		"bad team name":     {"BDL_TEAM_NAME", "abbreviation"},
		"negative lookback": {"SCORE_LOOKBACK_DAYS", "-1"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/settlement")
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_LIST", " , ")

	assert.Equal(t, 7, envInt("X_INT", 7))
	assert.True(t, envBool("X_BOOL", true))
	assert.Equal(t, []string{"a"}, envList("X_LIST", []string{"a"}))
}

package config

import (
	"errors"
	"testing"
	"time"
)

func validSettings(t *testing.T) map[string]any {
	t.Helper()
	return map[string]any{
		"auth.signing_secret": "secret",
		"datajud.api_key":     "key",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	for key, value := range validSettings(t) {
		configViper.Set(key, value)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected server defaults %+v", cfg)
	}
	if cfg.DatajudBaseURL != defaultDatajudBaseURL || cfg.DatajudTimeout != 30*time.Second {
		t.Fatalf("unexpected datajud defaults %+v", cfg)
	}
	if cfg.StaleAfter != 12*time.Hour {
		t.Fatalf("unexpected staleness threshold %s", cfg.StaleAfter)
	}
	if !cfg.BatchEnabled || cfg.BatchHour != 3 || cfg.BatchMinute != 0 || cfg.BatchLocation != time.Local {
		t.Fatalf("unexpected batch defaults %+v", cfg)
	}
	if cfg.AuthCookieName != defaultCookieName || cfg.AuthIssuer != defaultAuthIssuer {
		t.Fatalf("unexpected auth defaults %+v", cfg)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("JURIS_AUTH_SIGNING_SECRET", "secret")
	t.Setenv("JURIS_DATAJUD_API_KEY", "env-key")
	t.Setenv("JURIS_BATCH_TIMEZONE", "America/Sao_Paulo")
	t.Setenv("JURIS_MOVEMENTS_STALE_AFTER_HOURS", "6")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatajudAPIKey != "env-key" || cfg.StaleAfter != 6*time.Hour {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BatchLocation.String() != "America/Sao_Paulo" {
		t.Fatalf("unexpected batch location %s", cfg.BatchLocation)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("datajud.api_key", "   ")

	if _, err := Load(configViper); !errors.Is(err, ErrMissingDatajudAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		override map[string]any
	}{
		{name: "missing-signing-secret", override: map[string]any{"auth.signing_secret": ""}},
		{name: "blank-database-path", override: map[string]any{"database.path": " "}},
		{name: "bad-hour", override: map[string]any{"batch.hour": 24}},
		{name: "bad-minute", override: map[string]any{"batch.minute": -1}},
		{name: "bad-timezone", override: map[string]any{"batch.timezone": "Mars/Olympus"}},
		{name: "zero-timeout", override: map[string]any{"datajud.timeout_seconds": 0}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range validSettings(t) {
				configViper.Set(key, value)
			}
			for key, value := range testCase.override {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

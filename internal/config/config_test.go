package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEEFLOW_OUTPUT", "MEEFLOW_RETRIES", "MEEFLOW_NETWORK", "MEEFLOW_PRIVATE_KEY",
		"MEEFLOW_RELAY_URL", "MEEFLOW_BASE_RPC_URL", "KEY", "PRIVATE_KEY", "ALCHEMY_API_KEY",
	} {
		// t.Setenv restores the original value on cleanup.
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\nretries: 1\nnetwork: local\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MEEFLOW_OUTPUT", "json")
	t.Setenv("MEEFLOW_NETWORK", "mainnet")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5, EnvFile: filepath.Join(tmp, "missing.env")}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.Network != NetworkMainnet {
		t.Fatalf("expected env to override file network, got %s", settings.Network)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)
	settings, err := Load(GlobalFlags{Retries: -1, EnvFile: filepath.Join(t.TempDir(), ".env")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Retries != 0 {
		t.Fatalf("expected no retries by default, got %d", settings.Retries)
	}
	if settings.ConfirmTimeout != 10*time.Minute {
		t.Fatalf("expected 10m confirm timeout, got %s", settings.ConfirmTimeout)
	}
	if settings.JournalEnabled {
		t.Fatal("journal must be opt-in")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolateEnv(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadReadsDotEnvAndLegacyKey(t *testing.T) {
	isolateEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("KEY=abc123\nALCHEMY_API_KEY=alc\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	settings, err := Load(GlobalFlags{EnvFile: envFile, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PrivateKey != "abc123" {
		t.Fatalf("expected legacy KEY to be picked up, got %q", settings.PrivateKey)
	}
	if settings.AlchemyAPIKey != "alc" {
		t.Fatalf("expected alchemy key, got %q", settings.AlchemyAPIKey)
	}
}

func TestPrefixedKeyWinsOverLegacy(t *testing.T) {
	isolateEnv(t)
	t.Setenv("KEY", "legacy")
	t.Setenv("MEEFLOW_PRIVATE_KEY", "prefixed")
	settings, err := Load(GlobalFlags{EnvFile: filepath.Join(t.TempDir(), ".env"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PrivateKey != "prefixed" {
		t.Fatalf("expected prefixed key, got %q", settings.PrivateKey)
	}
}

func TestPrivateKeyFlagWinsOverEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MEEFLOW_PRIVATE_KEY", "prefixed")
	t.Setenv("KEY", "legacy")
	settings, err := Load(GlobalFlags{EnvFile: filepath.Join(t.TempDir(), ".env"), Retries: -1, PrivateKey: " flag "})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PrivateKey != "flag" {
		t.Fatalf("expected flag key, got %q", settings.PrivateKey)
	}
}

func TestPrivateKeyFallsBackToUnprefixedName(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PRIVATE_KEY", "unprefixed")
	settings, err := Load(GlobalFlags{EnvFile: filepath.Join(t.TempDir(), ".env"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.PrivateKey != "unprefixed" {
		t.Fatalf("expected PRIVATE_KEY fallback, got %q", settings.PrivateKey)
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	isolateEnv(t)
	if _, err := Load(GlobalFlags{Network: "testnet", Retries: -1}); err == nil {
		t.Fatal("expected unsupported network error")
	}
}

func TestRelayEndpointValidation(t *testing.T) {
	s := Settings{}
	got, err := s.RelayEndpoint(NetworkLocal)
	if err != nil || got != "http://localhost:3000/v3" {
		t.Fatalf("unexpected local relay endpoint %q err=%v", got, err)
	}
	s.RelayURL = "http://relay.example.com/v1"
	if _, err := s.RelayEndpoint(NetworkMainnet); err == nil {
		t.Fatal("expected plain http remote relay to be rejected")
	}
}

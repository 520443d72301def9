package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: plain\ntimeout: 5s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("BRIDGE_OUTPUT", "json")
	t.Setenv("BRIDGE_TIMEOUT", "10s")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Timeout: "20s", Retries: -1}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Timeout != 20*time.Second {
		t.Fatalf("expected timeout from flags, got %s", settings.Timeout)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadBridgeSections(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := `
data_dir: /var/lib/bridge
quote:
  attempts: 5
  retry_delay: 1s
  validity: 60s
gas:
  buffer: 1.25
heuristic:
  soft_floor: 10m
  hard_ceiling: 30m
rpc:
  gnosis: https://rpc.gnosischain.example
safes:
  gnosis: "0x3333333333333333333333333333333333333333"
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.QuoteAttempts != 5 || settings.QuoteRetryDelay != time.Second {
		t.Fatalf("quote settings = %d/%s", settings.QuoteAttempts, settings.QuoteRetryDelay)
	}
	if settings.ValidityPeriod != 60*time.Second {
		t.Fatalf("validity = %s", settings.ValidityPeriod)
	}
	if settings.GasBuffer != 1.25 {
		t.Fatalf("gas buffer = %f", settings.GasBuffer)
	}
	if settings.HeuristicSoftFloor != 10*time.Minute || settings.HeuristicHardCeiling != 30*time.Minute {
		t.Fatalf("heuristic windows = %s/%s", settings.HeuristicSoftFloor, settings.HeuristicHardCeiling)
	}
	if settings.RPCOverrides[100] != "https://rpc.gnosischain.example" {
		t.Fatalf("rpc override = %s", settings.RPCOverrides[100])
	}
	if settings.SafeAddresses[100] == "" {
		t.Fatal("safe address for gnosis not loaded")
	}
	if settings.BundlePath != filepath.Join("/var/lib/bridge", "bridge.json") {
		t.Fatalf("bundle path = %s", settings.BundlePath)
	}
	if settings.ExecutedDir != filepath.Join("/var/lib/bridge", "executed") {
		t.Fatalf("executed dir = %s", settings.ExecutedDir)
	}
}

func TestLoadUnknownRPCChainFails(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("rpc:\n  moonbase: https://x\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1}); err == nil {
		t.Fatal("expected error for unknown rpc chain")
	}
}

func TestWriteDefaultIfMissing(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := WriteDefaultIfMissing(path); err != nil {
		t.Fatalf("write default: %v", err)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(buf) == 0 {
		t.Fatal("default config is empty")
	}
	// A second call must not overwrite.
	if err := os.WriteFile(path, []byte("output: plain\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDefaultIfMissing(path); err != nil {
		t.Fatalf("second write: %v", err)
	}
	buf, _ = os.ReadFile(path)
	if string(buf) != "output: plain\n" {
		t.Fatal("existing config was overwritten")
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/bridge-cli/internal/registry"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	DataDir    string
	Timeout    string
	Retries    int
}

type Settings struct {
	OutputMode string

	// HTTP client behavior for the aggregator APIs.
	Timeout time.Duration
	Retries int

	// Quote retry budget: fixed delay between attempts.
	QuoteAttempts   int
	QuoteRetryDelay time.Duration

	// Bundle lifetime: an unexpired bundle with identical params is reused.
	ValidityPeriod time.Duration

	// GasBuffer multiplies successful gas estimates.
	GasBuffer float64

	// Staleness windows for judging an unreachable transfer failed.
	HeuristicSoftFloor   time.Duration
	HeuristicHardCeiling time.Duration

	DataDir              string
	BundlePath           string
	BundleLockPath       string
	ExecutedDir          string
	MessageCachePath     string
	MessageCacheLockPath string

	// Per-chain RPC overrides keyed by chain id; chains without an entry
	// use the built-in default endpoints.
	RPCOverrides map[int64]string

	// Optional smart-account addresses per chain id, accepted as transfer
	// senders alongside the master EOA.
	SafeAddresses map[int64]string

	// Aggregator API hosts, overridable for self-hosted gateways.
	LiFiBaseURL  string
	RelayBaseURL string
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	DataDir  string `yaml:"data_dir"`
	Quote    struct {
		Attempts   *int   `yaml:"attempts"`
		RetryDelay string `yaml:"retry_delay"`
		Validity   string `yaml:"validity"`
	} `yaml:"quote"`
	Gas struct {
		Buffer *float64 `yaml:"buffer"`
	} `yaml:"gas"`
	Heuristic struct {
		SoftFloor   string `yaml:"soft_floor"`
		HardCeiling string `yaml:"hard_ceiling"`
	} `yaml:"heuristic"`
	RPC       map[string]string `yaml:"rpc"`
	Safes     map[string]string `yaml:"safes"`
	Providers struct {
		LiFi struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"lifi"`
		Relay struct {
			BaseURL string `yaml:"base_url"`
		} `yaml:"relay"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.QuoteAttempts <= 0 {
		settings.QuoteAttempts = 3
	}
	if settings.ValidityPeriod <= 0 {
		settings.ValidityPeriod = 180 * time.Second
	}
	if settings.GasBuffer <= 1 {
		settings.GasBuffer = 1.10
	}
	settings.resolveDataPaths()

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:           "json",
		Timeout:              30 * time.Second,
		Retries:              2,
		QuoteAttempts:        3,
		QuoteRetryDelay:      2 * time.Second,
		ValidityPeriod:       180 * time.Second,
		GasBuffer:            1.10,
		HeuristicSoftFloor:   15 * time.Minute,
		HeuristicHardCeiling: 20 * time.Minute,
		DataDir:              dataDir,
		RPCOverrides:         map[int64]string{},
		SafeAddresses:        map[int64]string{},
		LiFiBaseURL:          registry.LiFiBaseURL,
		RelayBaseURL:         registry.RelayBaseURL,
	}, nil
}

// resolveDataPaths derives the store locations from DataDir.
func (s *Settings) resolveDataPaths() {
	s.BundlePath = filepath.Join(s.DataDir, "bridge.json")
	s.BundleLockPath = filepath.Join(s.DataDir, "bridge.lock")
	s.ExecutedDir = filepath.Join(s.DataDir, "executed")
	s.MessageCachePath = filepath.Join(s.DataDir, "messages.db")
	s.MessageCacheLockPath = filepath.Join(s.DataDir, "messages.lock")
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "bridge", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "bridge"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.DataDir != "" {
		settings.DataDir = cfg.DataDir
	}
	if cfg.Quote.Attempts != nil {
		settings.QuoteAttempts = *cfg.Quote.Attempts
	}
	if cfg.Quote.RetryDelay != "" {
		d, err := time.ParseDuration(cfg.Quote.RetryDelay)
		if err != nil {
			return fmt.Errorf("config quote.retry_delay: %w", err)
		}
		settings.QuoteRetryDelay = d
	}
	if cfg.Quote.Validity != "" {
		d, err := time.ParseDuration(cfg.Quote.Validity)
		if err != nil {
			return fmt.Errorf("config quote.validity: %w", err)
		}
		settings.ValidityPeriod = d
	}
	if cfg.Gas.Buffer != nil {
		settings.GasBuffer = *cfg.Gas.Buffer
	}
	if cfg.Heuristic.SoftFloor != "" {
		d, err := time.ParseDuration(cfg.Heuristic.SoftFloor)
		if err != nil {
			return fmt.Errorf("config heuristic.soft_floor: %w", err)
		}
		settings.HeuristicSoftFloor = d
	}
	if cfg.Heuristic.HardCeiling != "" {
		d, err := time.ParseDuration(cfg.Heuristic.HardCeiling)
		if err != nil {
			return fmt.Errorf("config heuristic.hard_ceiling: %w", err)
		}
		settings.HeuristicHardCeiling = d
	}
	for slug, url := range cfg.RPC {
		c, err := registry.ParseChain(slug)
		if err != nil {
			return fmt.Errorf("config rpc: %w", err)
		}
		settings.RPCOverrides[c.ID] = url
	}
	for slug, addr := range cfg.Safes {
		c, err := registry.ParseChain(slug)
		if err != nil {
			return fmt.Errorf("config safes: %w", err)
		}
		settings.SafeAddresses[c.ID] = addr
	}
	if cfg.Providers.LiFi.BaseURL != "" {
		settings.LiFiBaseURL = cfg.Providers.LiFi.BaseURL
	}
	if cfg.Providers.Relay.BaseURL != "" {
		settings.RelayBaseURL = cfg.Providers.Relay.BaseURL
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("BRIDGE_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("BRIDGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("BRIDGE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("BRIDGE_DATA_DIR"); v != "" {
		settings.DataDir = v
	}
	for _, c := range registry.Chains() {
		key := "BRIDGE_RPC_" + strings.ToUpper(c.Slug)
		if v := os.Getenv(key); v != "" {
			settings.RPCOverrides[c.ID] = v
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.DataDir) != "" {
		settings.DataDir = flags.DataDir
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

// WriteDefaultIfMissing materializes a commented starter config on first
// run so operators discover the knobs without reading source.
func WriteDefaultIfMissing(path string) error {
	if strings.TrimSpace(path) == "" {
		resolved, err := resolveConfigPath("")
		if err != nil {
			return err
		}
		path = resolved
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

const defaultConfigYAML = `# bridge configuration
output: json
timeout: 30s
retries: 2

quote:
  attempts: 3
  retry_delay: 2s
  validity: 180s

gas:
  buffer: 1.10

heuristic:
  soft_floor: 15m
  hard_ceiling: 20m

# rpc:
#   ethereum: https://rpc.example.org
#   gnosis: https://rpc.gnosischain.com

# safes:
#   gnosis: "0x..."
`

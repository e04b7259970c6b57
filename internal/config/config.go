package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "MEEFLOW"

type GlobalFlags struct {
	ConfigPath  string
	EnvFile     string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	Retries     int
	LogLevel    string
	LogFormat   string
	Network     string
	RPCProvider string
	BaseRPCURL  string
	OpRPCURL    string
	RelayURL    string
	PrivateKey  string
	Journal     bool
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	Timeout      time.Duration
	Retries      int
	LogLevel     string
	LogFormat    string

	Network     string
	Direction   string
	RPCProvider string
	// RPCOverrides maps EVM chain id to an explicit endpoint.
	RPCOverrides  map[int64]string
	AlchemyAPIKey string
	RelayURL      string
	RelayAPIKey   string

	// PrivateKey is the signing key: --private-key, then MEEFLOW_PRIVATE_KEY,
	// then KEY, then PRIVATE_KEY. It is never read from the config file.
	PrivateKey string

	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	TriggerTimeout time.Duration
	GasMultiplier  float64

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string

	Workflow WorkflowOverrides
}

type fileConfig struct {
	Output      string `yaml:"output"`
	Timeout     string `yaml:"timeout"`
	Retries     *int   `yaml:"retries"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Network     string `yaml:"network"`
	Direction   string `yaml:"direction"`
	RPCProvider string `yaml:"rpc_provider"`
	RPC         struct {
		Base     string `yaml:"base"`
		Optimism string `yaml:"optimism"`
	} `yaml:"rpc"`
	Relay struct {
		URL       string `yaml:"url"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"relay"`
	Execution struct {
		PollInterval   string   `yaml:"poll_interval"`
		ConfirmTimeout string   `yaml:"confirm_timeout"`
		TriggerTimeout string   `yaml:"trigger_timeout"`
		GasMultiplier  *float64 `yaml:"gas_multiplier"`
	} `yaml:"execution"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Workflow struct {
		FeeReserve         string `yaml:"fee_reserve"`
		MinAmount          string `yaml:"min_amount"`
		MaxAmount          string `yaml:"max_amount"`
		DefaultAmount      string `yaml:"default_amount"`
		QuoteWindowSeconds int64  `yaml:"quote_window_seconds"`
		TransferRatio      string `yaml:"transfer_ratio"`
	} `yaml:"workflow"`
}

// envConfig is read with the MEEFLOW_ prefix.
type envConfig struct {
	Output         string `envconfig:"OUTPUT"`
	Timeout        string `envconfig:"TIMEOUT"`
	Retries        string `envconfig:"RETRIES"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
	Network        string `envconfig:"NETWORK"`
	Direction      string `envconfig:"DIRECTION"`
	RPCProvider    string `envconfig:"RPC_PROVIDER"`
	BaseRPCURL     string `envconfig:"BASE_RPC_URL"`
	OpRPCURL       string `envconfig:"OP_RPC_URL"`
	RelayURL       string `envconfig:"RELAY_URL"`
	RelayAPIKey    string `envconfig:"RELAY_API_KEY"`
	PrivateKey     string `envconfig:"PRIVATE_KEY"`
	PollInterval   string `envconfig:"POLL_INTERVAL"`
	ConfirmTimeout string `envconfig:"CONFIRM_TIMEOUT"`
	Journal        string `envconfig:"JOURNAL"`
	JournalPath    string `envconfig:"JOURNAL_PATH"`
}

// legacyEnv carries the unprefixed names the original scripts used.
type legacyEnv struct {
	Key           string `envconfig:"KEY"`
	PrivateKey    string `envconfig:"PRIVATE_KEY"`
	AlchemyAPIKey string `envconfig:"ALCHEMY_API_KEY"`
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

	if err := loadDotEnv(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 10 * time.Minute
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	journalPath, lockPath, err := defaultJournalPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         30 * time.Second,
		Retries:         0,
		LogLevel:        "warn",
		LogFormat:       "text",
		RPCProvider:     "public",
		RPCOverrides:    map[int64]string{},
		PollInterval:    2 * time.Second,
		ConfirmTimeout:  10 * time.Minute,
		TriggerTimeout:  2 * time.Minute,
		GasMultiplier:   1.2,
		JournalPath:     journalPath,
		JournalLockPath: lockPath,
	}, nil
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
	return filepath.Join(base, "meeflow", "config.yaml"), nil
}

func defaultJournalPaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "meeflow")
	return filepath.Join(dir, "runs.db"), filepath.Join(dir, "runs.lock"), nil
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
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		settings.LogFormat = strings.ToLower(cfg.LogFormat)
	}
	if cfg.Network != "" {
		settings.Network = strings.ToLower(cfg.Network)
	}
	if cfg.Direction != "" {
		settings.Direction = strings.ToLower(cfg.Direction)
	}
	if cfg.RPCProvider != "" {
		settings.RPCProvider = strings.ToLower(cfg.RPCProvider)
	}
	if cfg.RPC.Base != "" {
		settings.RPCOverrides[8453] = cfg.RPC.Base
	}
	if cfg.RPC.Optimism != "" {
		settings.RPCOverrides[10] = cfg.RPC.Optimism
	}
	if cfg.Relay.URL != "" {
		settings.RelayURL = cfg.Relay.URL
	}
	if cfg.Relay.APIKeyEnv != "" {
		settings.RelayAPIKey = os.Getenv(cfg.Relay.APIKeyEnv)
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Execution.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config execution.confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Execution.TriggerTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.TriggerTimeout)
		if err != nil {
			return fmt.Errorf("config execution.trigger_timeout: %w", err)
		}
		settings.TriggerTimeout = d
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}
	settings.Workflow = WorkflowOverrides{
		FeeReserve:         cfg.Workflow.FeeReserve,
		MinAmount:          cfg.Workflow.MinAmount,
		MaxAmount:          cfg.Workflow.MaxAmount,
		DefaultAmount:      cfg.Workflow.DefaultAmount,
		QuoteWindowSeconds: cfg.Workflow.QuoteWindowSeconds,
		TransferRatio:      cfg.Workflow.TransferRatio,
	}
	return nil
}

// loadDotEnv reads a .env file into the process environment without
// overriding variables that are already set.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnv(settings *Settings) error {
	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	var legacy legacyEnv
	if err := envconfig.Process("", &legacy); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Output != "" {
		settings.OutputMode = strings.ToLower(env.Output)
	}
	if env.Timeout != "" {
		if d, err := time.ParseDuration(env.Timeout); err == nil {
			settings.Timeout = d
		}
	}
	if env.Retries != "" {
		if n, err := strconv.Atoi(env.Retries); err == nil {
			settings.Retries = n
		}
	}
	if env.LogLevel != "" {
		settings.LogLevel = strings.ToLower(env.LogLevel)
	}
	if env.LogFormat != "" {
		settings.LogFormat = strings.ToLower(env.LogFormat)
	}
	if env.Network != "" {
		settings.Network = strings.ToLower(env.Network)
	}
	if env.Direction != "" {
		settings.Direction = strings.ToLower(env.Direction)
	}
	if env.RPCProvider != "" {
		settings.RPCProvider = strings.ToLower(env.RPCProvider)
	}
	if env.BaseRPCURL != "" {
		settings.RPCOverrides[8453] = env.BaseRPCURL
	}
	if env.OpRPCURL != "" {
		settings.RPCOverrides[10] = env.OpRPCURL
	}
	if env.RelayURL != "" {
		settings.RelayURL = env.RelayURL
	}
	if env.RelayAPIKey != "" {
		settings.RelayAPIKey = env.RelayAPIKey
	}
	if env.PollInterval != "" {
		if d, err := time.ParseDuration(env.PollInterval); err == nil {
			settings.PollInterval = d
		}
	}
	if env.ConfirmTimeout != "" {
		if d, err := time.ParseDuration(env.ConfirmTimeout); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if env.Journal != "" {
		if b, err := strconv.ParseBool(env.Journal); err == nil {
			settings.JournalEnabled = b
		}
	}
	if env.JournalPath != "" {
		settings.JournalPath = env.JournalPath
	}
	if legacy.AlchemyAPIKey != "" {
		settings.AlchemyAPIKey = legacy.AlchemyAPIKey
	}

	switch {
	case env.PrivateKey != "":
		settings.PrivateKey = env.PrivateKey
	case legacy.Key != "":
		settings.PrivateKey = legacy.Key
	case legacy.PrivateKey != "":
		settings.PrivateKey = legacy.PrivateKey
	}
	return nil
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
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

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
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if flags.LogFormat != "" {
		settings.LogFormat = strings.ToLower(flags.LogFormat)
	}
	if flags.Network != "" {
		settings.Network = strings.ToLower(flags.Network)
	}
	if flags.RPCProvider != "" {
		settings.RPCProvider = strings.ToLower(flags.RPCProvider)
	}
	if flags.BaseRPCURL != "" {
		settings.RPCOverrides[8453] = flags.BaseRPCURL
	}
	if flags.OpRPCURL != "" {
		settings.RPCOverrides[10] = flags.OpRPCURL
	}
	if flags.RelayURL != "" {
		settings.RelayURL = flags.RelayURL
	}
	if key := strings.TrimSpace(flags.PrivateKey); key != "" {
		settings.PrivateKey = key
	}
	if flags.Journal {
		settings.JournalEnabled = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if settings.LogFormat != "text" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be text or json")
	}
	if settings.RPCProvider != "public" && settings.RPCProvider != "alchemy" {
		return fmt.Errorf("rpc provider must be public or alchemy")
	}
	if settings.Network != "" && settings.Network != NetworkLocal && settings.Network != NetworkMainnet {
		return fmt.Errorf("network must be %s or %s", NetworkLocal, NetworkMainnet)
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults mirror the original deployment: HTTP GUI on 8080, WebSocket
// channel on 8765, transport pings every 20s with a 30s timeout, client
// reconnect backoff 1s doubling to 30s.
const (
	DefaultHost     = "0.0.0.0"
	DefaultHTTPPort = 8080
	DefaultWSPort   = 8765

	DefaultPingInterval = 20 * time.Second
	DefaultPingTimeout  = 30 * time.Second

	DefaultReconnectInitialDelay = 1 * time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second

	DefaultRestartAttempts  = 3
	DefaultRestartDelay     = 2 * time.Second
	DefaultWarmupInterval   = 1 * time.Second
	DefaultTermGraceTimeout = 5 * time.Second
	DefaultKillWaitTimeout  = 2 * time.Second

	DefaultPromptPrefix = "use code to solve: "
	DefaultOpenAIModel  = "gpt-4o-mini"
)

type Config struct {
	Host     string
	HTTPPort int
	WSPort   int
	LogLevel string

	PingInterval time.Duration
	PingTimeout  time.Duration

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	RestartAttempts  int
	RestartDelay     time.Duration
	WarmupInterval   time.Duration
	TermGraceTimeout time.Duration
	KillWaitTimeout  time.Duration

	PromptPrefix string

	OpenAIEndpoint string
	OpenAIModel    string
	OpenAIAPIKey   string
}

// Load resolves configuration in three layers: built-in defaults, the
// optional config.toml in the snapai config dir, then SNAPAI_* environment
// overrides.
func Load() Config {
	cfg := defaults()
	if dir, err := Dir(); err == nil {
		if fc, err := NewStore(dir).LoadOrInit(); err == nil {
			applyFile(&cfg, fc)
		}
	}
	applyEnv(&cfg)
	return cfg
}

func defaults() Config {
	return Config{
		Host:                  DefaultHost,
		HTTPPort:              DefaultHTTPPort,
		WSPort:                DefaultWSPort,
		LogLevel:              "info",
		PingInterval:          DefaultPingInterval,
		PingTimeout:           DefaultPingTimeout,
		ReconnectInitialDelay: DefaultReconnectInitialDelay,
		ReconnectMaxDelay:     DefaultReconnectMaxDelay,
		RestartAttempts:       DefaultRestartAttempts,
		RestartDelay:          DefaultRestartDelay,
		WarmupInterval:        DefaultWarmupInterval,
		TermGraceTimeout:      DefaultTermGraceTimeout,
		KillWaitTimeout:       DefaultKillWaitTimeout,
		PromptPrefix:          DefaultPromptPrefix,
		OpenAIModel:           DefaultOpenAIModel,
	}
}

func applyFile(cfg *Config, fc FileConfig) {
	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.HTTPPort > 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	if fc.WSPort > 0 {
		cfg.WSPort = fc.WSPort
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.PromptPrefix != "" {
		cfg.PromptPrefix = fc.PromptPrefix
	}
	if fc.OpenAI.Endpoint != "" {
		cfg.OpenAIEndpoint = fc.OpenAI.Endpoint
	}
	if fc.OpenAI.Model != "" {
		cfg.OpenAIModel = fc.OpenAI.Model
	}
	if fc.OpenAI.APIKey != "" {
		cfg.OpenAIAPIKey = fc.OpenAI.APIKey
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SNAPAI_HOST"); v != "" {
		cfg.Host = v
	}
	cfg.HTTPPort = envInt("SNAPAI_HTTP_PORT", cfg.HTTPPort)
	cfg.WSPort = envInt("SNAPAI_WS_PORT", cfg.WSPort)
	if v := os.Getenv("SNAPAI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.PingInterval = envSeconds("SNAPAI_PING_INTERVAL", cfg.PingInterval)
	cfg.PingTimeout = envSeconds("SNAPAI_PING_TIMEOUT", cfg.PingTimeout)
	cfg.ReconnectInitialDelay = envSeconds("SNAPAI_RECONNECT_INITIAL_DELAY", cfg.ReconnectInitialDelay)
	cfg.ReconnectMaxDelay = envSeconds("SNAPAI_RECONNECT_MAX_DELAY", cfg.ReconnectMaxDelay)
	cfg.RestartAttempts = envInt("SNAPAI_RESTART_ATTEMPTS", cfg.RestartAttempts)
	cfg.RestartDelay = envSeconds("SNAPAI_RESTART_DELAY", cfg.RestartDelay)
	cfg.WarmupInterval = envSeconds("SNAPAI_WARMUP_INTERVAL", cfg.WarmupInterval)
	cfg.TermGraceTimeout = envSeconds("SNAPAI_TERM_GRACE_TIMEOUT", cfg.TermGraceTimeout)
	cfg.KillWaitTimeout = envSeconds("SNAPAI_KILL_WAIT_TIMEOUT", cfg.KillWaitTimeout)
	if v := os.Getenv("SNAPAI_PROMPT_PREFIX"); v != "" {
		cfg.PromptPrefix = v
	}
	if v := os.Getenv("OPENAI_ENDPOINT"); v != "" {
		cfg.OpenAIEndpoint = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

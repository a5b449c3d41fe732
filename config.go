package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// config holds everything the process reads from flags and environment.
// Flags win over environment variables.
type config struct {
	// Model endpoint
	apiURL          string
	apiKey          string
	modelName       string
	temperature     float64
	maxTokens       int
	requestTimeout  int // ms
	fim             bool
	inputPricePerM  float64
	outputPricePerM float64

	// Edit prediction service (empty URL disables the strategy)
	editsURL string
	editsKey string

	// Strategy selection
	strategyOverride string // force this strategy for every request
	fallbackStrategy string

	// Editor loop
	completionTimeout  time.Duration
	idleDelay          time.Duration
	textChangeDebounce time.Duration

	// Process
	privacyMode bool
	stateDir    string
	logFile     string
	logLevel    string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloatOr(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func loadConfig() *config {
	cfg := &config{}

	flag.StringVar(&cfg.apiURL, "api-url", envOr("GHOSTTAB_API_URL", "http://127.0.0.1:8080"), "model endpoint base URL")
	flag.StringVar(&cfg.apiKey, "api-key", envOr("GHOSTTAB_API_KEY", ""), "model endpoint API key")
	flag.StringVar(&cfg.modelName, "model", envOr("GHOSTTAB_MODEL", ""), "model name")
	flag.Float64Var(&cfg.temperature, "temperature", envFloatOr("GHOSTTAB_TEMPERATURE", 0.2), "sampling temperature")
	flag.IntVar(&cfg.maxTokens, "max-tokens", envIntOr("GHOSTTAB_MAX_TOKENS", 256), "max generated tokens per completion")
	flag.IntVar(&cfg.requestTimeout, "request-timeout-ms", envIntOr("GHOSTTAB_REQUEST_TIMEOUT_MS", 10000), "model request timeout in ms")
	flag.BoolVar(&cfg.fim, "fim", envBoolOr("GHOSTTAB_FIM", true), "endpoint supports fill-in-middle")
	flag.Float64Var(&cfg.inputPricePerM, "input-price", envFloatOr("GHOSTTAB_INPUT_PRICE", 0), "input price per million tokens")
	flag.Float64Var(&cfg.outputPricePerM, "output-price", envFloatOr("GHOSTTAB_OUTPUT_PRICE", 0), "output price per million tokens")

	flag.StringVar(&cfg.editsURL, "edits-url", envOr("GHOSTTAB_EDITS_URL", ""), "edit prediction service base URL (empty disables)")
	flag.StringVar(&cfg.editsKey, "edits-api-key", envOr("GHOSTTAB_EDITS_API_KEY", ""), "edit prediction service API key")

	flag.StringVar(&cfg.strategyOverride, "strategy", envOr("GHOSTTAB_STRATEGY", ""), "force a specific strategy by name")
	flag.StringVar(&cfg.fallbackStrategy, "fallback", envOr("GHOSTTAB_FALLBACK", "rewrite"), "fallback strategy name")

	completionTimeoutMs := flag.Int("completion-timeout-ms", envIntOr("GHOSTTAB_COMPLETION_TIMEOUT_MS", 15000), "end-to-end completion timeout in ms")
	idleDelayMs := flag.Int("idle-delay-ms", envIntOr("GHOSTTAB_IDLE_DELAY_MS", 2000), "idle trigger delay in ms")
	debounceMs := flag.Int("debounce-ms", envIntOr("GHOSTTAB_DEBOUNCE_MS", 150), "text change debounce in ms")

	flag.BoolVar(&cfg.privacyMode, "privacy-mode", envBoolOr("GHOSTTAB_PRIVACY_MODE", false), "opt out of server-side data retention")
	flag.StringVar(&cfg.stateDir, "state-dir", envOr("GHOSTTAB_STATE_DIR", defaultStateDir()), "directory for persistent state")
	flag.StringVar(&cfg.logFile, "log-file", envOr("GHOSTTAB_LOG_FILE", ""), "log file path (empty = stderr)")
	flag.StringVar(&cfg.logLevel, "log-level", envOr("GHOSTTAB_LOG_LEVEL", "INFO"), "log level: TRACE, DEBUG, INFO, WARN, ERROR")

	flag.Parse()

	cfg.completionTimeout = time.Duration(*completionTimeoutMs) * time.Millisecond
	cfg.idleDelay = time.Duration(*idleDelayMs) * time.Millisecond
	cfg.textChangeDebounce = time.Duration(*debounceMs) * time.Millisecond

	return cfg
}

func defaultStateDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return dir + "/ghosttab"
}

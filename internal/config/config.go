package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModels is the ordered candidate list the relay works through until
// one of them produces an image.
var DefaultModels = []string{
	"gemini-2.5-flash-image-preview",
	"gemini-2.0-flash-preview-image-generation",
	"gemini-2.0-flash-exp-image-generation",
	"gemini-2.0-flash-exp",
}

type Config struct {
	APIKey      string
	ListenAddr  string
	Models      []string
	MaxAttempts int
	RetryDelay  time.Duration
	Temperature float64
}

// Load reads configuration from flags with environment fallback. A .env file
// in the working directory is applied to the environment first.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	flag.StringVar(&cfg.APIKey, "api-key", getEnv("GEMINI_API_KEY", ""), "Gemini API key (without it every /api route reports not configured)")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", defaultListenAddr(), "HTTP listen address")

	var models string
	flag.StringVar(&models, "models", getEnv("IMAGE_MODELS", ""), "comma-separated candidate model IDs, tried in order")

	flag.IntVar(&cfg.MaxAttempts, "max-attempts", getEnvInt("MAX_ATTEMPTS", 3), "total calls per candidate when it keeps hitting quota errors")

	retryStr := getEnv("RETRY_DELAY", "5s")
	defaultRetry, _ := time.ParseDuration(retryStr)
	if defaultRetry == 0 {
		defaultRetry = 5 * time.Second
	}
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", defaultRetry, "pause between quota retries")

	flag.Float64Var(&cfg.Temperature, "temperature", 1.0, "sampling temperature for generation calls")

	flag.Parse()

	cfg.Models = DefaultModels
	if models != "" {
		cfg.Models = splitModels(models)
	}
	return cfg
}

// KeyLoaded reports whether a provider credential is configured.
func (c *Config) KeyLoaded() bool {
	return c.APIKey != ""
}

// KeyPreview returns a redacted form of the key for diagnostics.
func (c *Config) KeyPreview() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) <= 8 {
		return "..."
	}
	return c.APIKey[:8] + "..."
}

func defaultListenAddr() string {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":3000"
}

func splitModels(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

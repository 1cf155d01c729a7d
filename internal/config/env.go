package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSchedule  = "1,16,31,46 * * * *"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	appDirName       = "discord_free_game_notifier"
)

// EnvConfig holds the settings read from the process environment. Non-empty
// values override the YAML document.
type EnvConfig struct {
	ConfigPath string
	RunOnce    bool
	DataDir    string
	LogLevel   string

	WebhookURL    string
	StoreWebhooks map[string]string

	Stores    []string
	Platforms []string

	Schedule string
	Timezone string

	HTTPTimeout  time.Duration
	UserAgent    string
	StoreTimeout time.Duration

	SeenStoreDriver string
	SeenStoreDSN    string

	StatusAddr string

	OTel OTelEnvConfig
}

type OTelEnvConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Protocol    string // "grpc" or "http/protobuf"
	Headers     map[string]string
	Insecure    bool
	SampleRatio float64
}

func LoadEnv() EnvConfig {
	otlpEndpoint := strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	webhooks := map[string]string{}
	for _, key := range []string{"steam", "epic", "gog", "ubisoft"} {
		if v := envString(strings.ToUpper(key)+"_WEBHOOK", ""); v != "" {
			webhooks[key] = v
		}
	}

	return EnvConfig{
		ConfigPath:      envString("NOTIFIER_CONFIG", ""),
		RunOnce:         envBool("RUN_ONCE", false),
		DataDir:         envString("DATA_DIR", ""),
		LogLevel:        strings.ToLower(envString("LOG_LEVEL", "")),
		WebhookURL:      envString("WEBHOOK_URL", ""),
		StoreWebhooks:   webhooks,
		Stores:          envList("STORES"),
		Platforms:       envList("PLATFORMS"),
		Schedule:        envString("CHECK_SCHEDULE", ""),
		Timezone:        envString("CHECK_TIMEZONE", ""),
		HTTPTimeout:     envDuration("HTTP_TIMEOUT", 0),
		UserAgent:       envString("HTTP_USER_AGENT", ""),
		StoreTimeout:    envDuration("STORE_TIMEOUT", 0),
		SeenStoreDriver: strings.ToLower(envString("SEEN_STORE_DRIVER", "")),
		SeenStoreDSN:    envString("SEEN_STORE_DSN", ""),
		StatusAddr:      envString("STATUS_ADDR", ""),
		OTel: OTelEnvConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			ServiceName: strings.TrimSpace(envString("OTEL_SERVICE_NAME", "free-game-notifier")),
			Endpoint:    otlpEndpoint,
			Protocol:    strings.ToLower(strings.TrimSpace(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			Headers:     parseHeaders(envString("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", defaultInsecure(otlpEndpoint)),
			SampleRatio: clamp01(envFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0)),
		},
	}
}

// DefaultDataDir returns $XDG_DATA_HOME/discord_free_game_notifier, falling
// back to ~/.local/share/discord_free_game_notifier.
func DefaultDataDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := parseDurationExtended(v)
	if err != nil {
		return fallback
	}
	return d
}

// envList splits a comma separated variable ("steam,gog") into trimmed,
// non-empty items.
func envList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func defaultInsecure(endpoint string) bool {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return true
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return u.Scheme == "http"
	}
	return strings.HasPrefix(endpoint, "localhost:") ||
		strings.HasPrefix(endpoint, "127.0.0.1:") ||
		strings.HasPrefix(endpoint, "0.0.0.0:")
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/graphwatch/pkg/subscriptions"
)

// Settings configures a graphwatch client. Values load in three layers:
// defaults, then the optional YAML file, then environment overrides.
type Settings struct {
	// GraphBaseURL is the remote chat/directory API root.
	GraphBaseURL string `yaml:"graph_base_url" env:"GRAPHWATCH_GRAPH_BASE_URL"`
	// FunctionHost serves both the decryption endpoint and, unless
	// NotificationEndpoint is set, the push channel.
	FunctionHost string `yaml:"function_host" env:"GRAPHWATCH_FUNCTION_HOST"`
	// NotificationEndpoint overrides the derived websocket URL.
	NotificationEndpoint string `yaml:"notification_endpoint" env:"GRAPHWATCH_NOTIFICATION_ENDPOINT"`
	// StorePath locates the session store database. Empty means an
	// in-memory store that does not survive the process.
	StorePath string `yaml:"store_path" env:"GRAPHWATCH_STORE_PATH"`

	SubscriptionLifetimeMinutes int `yaml:"subscription_lifetime_minutes" env:"GRAPHWATCH_SUBSCRIPTION_LIFETIME_MINUTES"`
	RenewalThresholdSeconds     int `yaml:"renewal_threshold_seconds" env:"GRAPHWATCH_RENEWAL_THRESHOLD_SECONDS"`
	TimerIntervalSeconds        int `yaml:"timer_interval_seconds" env:"GRAPHWATCH_TIMER_INTERVAL_SECONDS"`
	SweepRestartGraceSeconds    int `yaml:"sweep_restart_grace_seconds" env:"GRAPHWATCH_SWEEP_RESTART_GRACE_SECONDS"`
}

// Default mirrors the reference deployment: five minute subscriptions,
// renewed when 45 seconds from expiry, checked every 10 seconds.
func Default() Settings {
	return Settings{
		SubscriptionLifetimeMinutes: 5,
		RenewalThresholdSeconds:     45,
		TimerIntervalSeconds:        10,
		SweepRestartGraceSeconds:    30,
	}
}

// Load builds Settings from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, in that order.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return Settings{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	if err := env.Parse(&s); err != nil {
		return Settings{}, errors.Wrap(err, "config: environment")
	}
	return s, nil
}

// WebsocketEndpoint returns the push channel URL, deriving a ws(s) URL
// from FunctionHost when no explicit endpoint is configured.
func (s Settings) WebsocketEndpoint() string {
	if s.NotificationEndpoint != "" {
		return s.NotificationEndpoint
	}
	host := s.FunctionHost
	switch {
	case strings.HasPrefix(host, "https://"):
		host = "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		host = "ws://" + strings.TrimPrefix(host, "http://")
	}
	return strings.TrimRight(host, "/") + "/api/notifications"
}

// SubscriptionSettings converts the timing knobs into the manager's form.
func (s Settings) SubscriptionSettings() subscriptions.Settings {
	return subscriptions.Settings{
		Lifetime:          time.Duration(s.SubscriptionLifetimeMinutes) * time.Minute,
		RenewalThreshold:  time.Duration(s.RenewalThresholdSeconds) * time.Second,
		TimerInterval:     time.Duration(s.TimerIntervalSeconds) * time.Second,
		SweepRestartGrace: time.Duration(s.SweepRestartGraceSeconds) * time.Second,
	}
}

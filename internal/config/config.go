package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heliostat/heliostat/internal/feed"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort    = 8080
	DefaultSnapshotTTL = 60 * time.Second
	DefaultFeedTimeout = 15 * time.Second
)

// Config is the top-level heliostat configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Persist PersistConfig `yaml:"persist"`
	Feeds   []FeedConfig  `yaml:"feeds"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// ServerConfig holds the HTTP serving settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub, and metrics endpoint
	// listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// UserAgent identifies this service to upstream feed operators.
	UserAgent string `yaml:"user_agent"`
}

// CacheConfig controls the snapshot cache.
type CacheConfig struct {
	// TTL is how long a snapshot is served without re-querying upstreams.
	// Default: 60s.
	TTL time.Duration `yaml:"ttl"`
}

// PersistConfig controls the secondary snapshot store.
type PersistConfig struct {
	// Path is the SQLite database file used to recover the latest snapshot
	// after a restart. Empty disables persistence.
	Path string `yaml:"path"`
}

// FeedConfig describes one upstream feed. It is the YAML-facing counterpart
// of feed.Spec.
type FeedConfig struct {
	// ID uniquely identifies the feed across readings, failures, and alerts.
	ID string `yaml:"id"`

	// Name is the human-readable feed name.
	Name string `yaml:"name"`

	// URL is the upstream endpoint.
	URL string `yaml:"url"`

	// Shape is one of: tabular | records | text.
	Shape string `yaml:"shape"`

	// ValueColumn names the validity-determining header column (tabular).
	ValueColumn string `yaml:"value_column"`

	// ValueField names the validity-determining record field (records).
	ValueField string `yaml:"value_field"`

	// TimeField names the record field carrying the sample time
	// (records; default "time_tag").
	TimeField string `yaml:"time_field"`

	// ChannelField and Channels enable multi-band extraction: one reading
	// per channel (records only).
	ChannelField string          `yaml:"channel_field"`
	Channels     []ChannelConfig `yaml:"channels"`

	// MaxSteps bounds the backward validity scan. Zero uses the
	// shape-specific default.
	MaxSteps int `yaml:"max_steps"`

	// WindowMinutes and SamplesPerMinute size the channel-scan window.
	WindowMinutes    int `yaml:"window_minutes"`
	SamplesPerMinute int `yaml:"samples_per_minute"`

	// CommentMarkers lists comment-line prefixes (text; default "#" and ":").
	CommentMarkers []string `yaml:"comment_markers"`

	// Timeout bounds one retrieval of this feed (default 15s).
	Timeout time.Duration `yaml:"timeout"`
}

// ChannelConfig selects one band of a multi-band feed. In YAML it is either
// a bare string, used as both the match label and the reading key, or a
// mapping with a separate key for upstream labels that contain whitespace:
//
//	channels:
//	  - label: ">=10 MeV"
//	    key: ">=10MeV"
//
// Label must match the upstream payload's channel field exactly. Key names
// the band in reading keys ("proton-flux/>=10MeV") and alert conditions;
// the condition grammar splits on whitespace, so keys may not contain any.
type ChannelConfig struct {
	Label string `yaml:"label"`
	Key   string `yaml:"key"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (c *ChannelConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&c.Label)
	}
	type plain ChannelConfig
	return node.Decode((*plain)(c))
}

// Spec converts the YAML form into the runtime feed.Spec.
func (f FeedConfig) Spec() feed.Spec {
	channels := make([]feed.Channel, 0, len(f.Channels))
	for _, c := range f.Channels {
		channels = append(channels, feed.Channel{Label: c.Label, Key: c.Key})
	}
	return feed.Spec{
		ID:               f.ID,
		Name:             f.Name,
		URL:              f.URL,
		Shape:            feed.Shape(f.Shape),
		ValueColumn:      f.ValueColumn,
		ValueField:       f.ValueField,
		TimeField:        f.TimeField,
		ChannelField:     f.ChannelField,
		Channels:         channels,
		MaxSteps:         f.MaxSteps,
		WindowMinutes:    f.WindowMinutes,
		SamplesPerMinute: f.SamplesPerMinute,
		CommentMarkers:   f.CommentMarkers,
		Timeout:          f.Timeout,
	}
}

// Specs converts all configured feeds into runtime specs.
func (c *Config) Specs() []feed.Spec {
	specs := make([]feed.Spec, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		specs = append(specs, f.Spec())
	}
	return specs
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the
	// deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over snapshot readings:
	// "solar-wind-mag < -10", "kp-index >= 5",
	// "solar-wind-plasma.speed > 600" (aux field via dot).
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook
	// URL, so the URL itself stays out of the config file.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path. Missing optional
// fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	for i := range cfg.Feeds {
		if cfg.Feeds[i].Timeout <= 0 {
			cfg.Feeds[i].Timeout = DefaultFeedTimeout
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			UserAgent: "heliostat",
		},
		Cache: CacheConfig{
			TTL: DefaultSnapshotTTL,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in 1..65535")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if len(cfg.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}

	seen := make(map[string]bool, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feeds[%d]: id is required", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("feeds[%d] %q: duplicate id", i, f.ID)
		}
		seen[f.ID] = true
		if f.URL == "" {
			return fmt.Errorf("feeds[%d] %q: url is required", i, f.ID)
		}
		switch feed.Shape(f.Shape) {
		case feed.ShapeTabular:
			if f.ValueColumn == "" {
				return fmt.Errorf("feeds[%d] %q: value_column is required for tabular feeds", i, f.ID)
			}
		case feed.ShapeRecords:
			if f.ValueField == "" {
				return fmt.Errorf("feeds[%d] %q: value_field is required for record feeds", i, f.ID)
			}
			if f.ChannelField != "" && len(f.Channels) == 0 {
				return fmt.Errorf("feeds[%d] %q: channel_field set but no channels listed", i, f.ID)
			}
			if f.ChannelField == "" && len(f.Channels) > 0 {
				return fmt.Errorf("feeds[%d] %q: channels listed but channel_field is empty", i, f.ID)
			}
			for _, c := range f.Channels {
				if c.Label == "" {
					return fmt.Errorf("feeds[%d] %q: channel label is required", i, f.ID)
				}
				if strings.ContainsAny(c.Key, " \t") {
					return fmt.Errorf("feeds[%d] %q: channel key %q contains whitespace", i, f.ID, c.Key)
				}
				if c.Key == "" && strings.ContainsAny(c.Label, " \t") {
					return fmt.Errorf("feeds[%d] %q: channel label %q contains whitespace; set a key to name it in reading keys", i, f.ID, c.Label)
				}
			}
		case feed.ShapeText:
		default:
			return fmt.Errorf("feeds[%d] %q: unknown shape %q", i, f.ID, f.Shape)
		}
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	return nil
}

// Package config loads the backplane's YAML configuration, covering
// both the Memory Abstraction Layer's adapter/classifier/router tuning
// and the Sprint Automation Daemon's scheduling/IPC tuning.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	backplaneerrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Config is the root document. Every section has defaults so a missing
// or minimal file still loads.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Memory     MemoryConfig     `yaml:"memory"`
	Sprint     SprintConfig     `yaml:"sprint"`
	VectorDB   VectorDBConfig   `yaml:"vector_db"`
	Inference  InferenceConfig  `yaml:"inference"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Notify     NotifyConfig     `yaml:"notify"`
	PostgresMirror PostgresMirrorConfig `yaml:"postgres_mirror"`
}

// ServerConfig binds the IPC Surface's HTTP/JSON listener, which also
// serves /metrics; MetricsPort is decoded but no listener binds it (no
// gRPC port: see DESIGN.md's dropped-dependency entry for why the IPC
// Surface is HTTP/JSON only).
type ServerConfig struct {
	HTTPPort    string `yaml:"http_port"`
	MetricsPort string `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// MemoryConfig tunes the Memory Abstraction Layer (components A-G).
type MemoryConfig struct {
	PluginDir        string        `yaml:"plugin_dir"`
	DefaultDeadline  time.Duration `yaml:"default_deadline"`
	HealthCacheTTL   time.Duration `yaml:"health_cache_ttl"`
	MaxItems         int           `yaml:"max_items"`
	DedupThreshold   float64       `yaml:"dedup_threshold"`
	SearchLimit      int           `yaml:"search_limit"`
	IncludeSlow      bool          `yaml:"include_slow"`
	TrainingLogPath  string        `yaml:"training_log_path"`
	RedisAddr        string        `yaml:"redis_addr"`
	BroadcastChannel string        `yaml:"broadcast_channel"`
}

// SprintConfig tunes the Sprint Automation Daemon (components H-N).
// SprintConfig doubles as the get_config/set_config wire payload (spec
// §4.M), so every field also carries a json tag mirroring its yaml one
// to keep that surface's snake_case convention.
type SprintConfig struct {
	TrackerProject             string             `yaml:"tracker_project" json:"tracker_project"`
	TrackerComponent           string             `yaml:"tracker_component" json:"tracker_component"`
	WorkingHours               WorkingHours       `yaml:"working_hours" json:"working_hours"`
	CheckIntervalSeconds       int                `yaml:"check_interval_seconds" json:"check_interval_seconds"`
	TrackerRefreshIntervalSecs int                `yaml:"tracker_refresh_interval_seconds" json:"tracker_refresh_interval_seconds"`
	ReviewCheckIntervalSecs    int                `yaml:"review_check_interval_seconds" json:"review_check_interval_seconds"`
	SkipBlockedAfterMinutes    int                `yaml:"skip_blocked_after_minutes" json:"skip_blocked_after_minutes"`
	StateRoot                  string             `yaml:"state_root" json:"state_root"`
	LocalUser                  string             `yaml:"local_user" json:"local_user"`
	ActionableStatuses         []string           `yaml:"actionable_statuses" json:"actionable_statuses"`
	ReviewStatuses             []string           `yaml:"review_statuses" json:"review_statuses"`
	PrioritizerWeights         PrioritizerWeights `yaml:"prioritizer_weights" json:"prioritizer_weights"`
	BackgroundAgentTimeout     time.Duration      `yaml:"background_agent_timeout" json:"background_agent_timeout"`
	ReviewCheckTimeout         time.Duration      `yaml:"review_check_timeout" json:"review_check_timeout"`
	ReviewMergeTimeout         time.Duration      `yaml:"review_merge_timeout" json:"review_merge_timeout"`
	OPAPolicyPath              string             `yaml:"opa_policy_path" json:"opa_policy_path"`
}

type PrioritizerWeights struct {
	Priority float64 `yaml:"priority" json:"priority"`
	Points   float64 `yaml:"points" json:"points"`
	Age      float64 `yaml:"age" json:"age"`
	Type     float64 `yaml:"type" json:"type"`
}

// WorkingHours is the gate SAD's main loop consults before running
// scheduled (non-manual) work. ExtraHolidays is a SPEC_FULL supplement:
// dates (YYYY-MM-DD) layered on top of the weekday/hour window.
type WorkingHours struct {
	StartHour     int      `yaml:"start_hour" json:"start_hour"`
	StartMinute   int      `yaml:"start_minute" json:"start_minute"`
	EndHour       int      `yaml:"end_hour" json:"end_hour"`
	EndMinute     int      `yaml:"end_minute" json:"end_minute"`
	WeekdaysOnly  bool     `yaml:"weekdays_only" json:"weekdays_only"`
	Timezone      string   `yaml:"timezone" json:"timezone"`
	ExtraHolidays []string `yaml:"extra_holidays" json:"extra_holidays"`
}

type VectorDBConfig struct {
	Enabled          bool             `yaml:"enabled"`
	Backend          string           `yaml:"backend" validate:"omitempty,oneof=memory postgres"`
	DSN              string           `yaml:"dsn"`
	MigrationsDir    string           `yaml:"migrations_dir"`
	EmbeddingService EmbeddingConfig  `yaml:"embedding_service"`
}

type EmbeddingConfig struct {
	Service   string `yaml:"service"`
	Dimension int    `yaml:"dimension"`
}

// InferenceConfig configures the Intent Classifier's external-model path
// (§4.C-1). Provider selects among the pluggable clients.
type InferenceConfig struct {
	Provider    string        `yaml:"provider" validate:"omitempty,oneof=localai anthropic bedrock"`
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	HealthTTL   time.Duration `yaml:"health_ttl"`
	AWSRegion   string        `yaml:"aws_region"`
}

type TrackerConfig struct {
	BaseURLOverride string        `yaml:"base_url_override"`
	OAuthClientID   string        `yaml:"oauth_client_id"`
	TransitionTimeout time.Duration `yaml:"transition_timeout"`
}

type NotifyConfig struct {
	SlackEnabled bool   `yaml:"slack_enabled"`
	SlackChannel string `yaml:"slack_channel"`
}

type PostgresMirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: "8090", MetricsPort: "9090"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Memory: MemoryConfig{
			PluginDir:        "adapters.d",
			DefaultDeadline:  30 * time.Second,
			HealthCacheTTL:   60 * time.Second,
			MaxItems:         20,
			DedupThreshold:   0.9,
			SearchLimit:      10,
			TrainingLogPath:  "classifiers/intent_training.jsonl",
			BroadcastChannel: "memory.events",
		},
		Sprint: SprintConfig{
			TrackerProject: "AAP",
			WorkingHours: WorkingHours{
				StartHour: 9, StartMinute: 0,
				EndHour: 17, EndMinute: 0,
				WeekdaysOnly: true,
				Timezone:     "Local",
			},
			CheckIntervalSeconds:       300,
			TrackerRefreshIntervalSecs: 1800,
			ReviewCheckIntervalSecs:    28800,
			SkipBlockedAfterMinutes:    30,
			StateRoot:                  "state",
			ActionableStatuses:         []string{"new", "refinement", "to do", "open", "backlog"},
			ReviewStatuses:             []string{"in review", "code review"},
			PrioritizerWeights:         PrioritizerWeights{Priority: 0.4, Points: 0.3, Age: 0.2, Type: 0.1},
			BackgroundAgentTimeout:     1800 * time.Second,
			ReviewCheckTimeout:         120 * time.Second,
			ReviewMergeTimeout:         180 * time.Second,
		},
		VectorDB: VectorDBConfig{
			Enabled: false,
			Backend: "memory",
			EmbeddingService: EmbeddingConfig{Service: "local", Dimension: 384},
		},
		Inference: InferenceConfig{
			Provider:  "localai",
			Timeout:   5 * time.Second,
			HealthTTL: 30 * time.Second,
		},
	}
}

var validate = validator.New()

// Load reads and decodes path, applying defaults for anything absent.
// A missing file is not an error: it yields pure defaults, matching
// the teacher's graceful-minimal-config behavior.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, backplaneerrors.FailedToWithDetails("load config", "config", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, backplaneerrors.FailedToWithDetails("parse config", "config", path, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, backplaneerrors.FailedToWithDetails("validate config", "config", path, err)
	}

	return cfg, nil
}

// Package config loads etabot.yaml and applies ETABOT_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/etabotai/etabot/internal/infrastructure/jira"
	"github.com/etabotai/etabot/internal/infrastructure/logging"
	"github.com/etabotai/etabot/pkg/domain/messaging"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "etabot.yaml"

// EnvPrefix prefixes environment overrides, e.g. ETABOT_TMS_TOKEN.
const EnvPrefix = "ETABOT"

// Source system types.
const (
	TMSJira    = "jira"
	TMSFixture = "fixture"
)

// Config models etabot.yaml.
type Config struct {
	// Owner is the account whose projects runs process.
	Owner    string                    `yaml:"owner"`
	Log      logging.Config            `yaml:"log"`
	Pipeline PipelineConfig            `yaml:"pipeline"`
	Store    StoreConfig               `yaml:"store"`
	TMS      TMSConfig                 `yaml:"tms"`
	Engine   EngineConfig              `yaml:"engine"`
	Email    messaging.MessagingConfig `yaml:"email"`
	Metrics  MetricsConfig             `yaml:"metrics"`
}

type PipelineConfig struct {
	Workers           int           `yaml:"workers"`
	PredictionTimeout time.Duration `yaml:"prediction_timeout"`
	// ReportDir receives a copy of every emailed report when set.
	ReportDir string `yaml:"report_dir,omitempty"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type TMSConfig struct {
	Type     string `yaml:"type"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Username string `yaml:"username,omitempty"`
	// Token is a Jira API token used with Username.
	Token  string       `yaml:"token,omitempty"`
	OAuth2 OAuth2Config `yaml:"oauth2,omitempty"`

	PointsField   string                 `yaml:"points_field,omitempty"`
	SprintField   string                 `yaml:"sprint_field,omitempty"`
	MaxConcurrent int                    `yaml:"max_concurrent,omitempty"`
	Teams         map[string][]jira.Team `yaml:"teams,omitempty"`

	// Fixture is the YAML file read by the fixture source.
	Fixture string `yaml:"fixture,omitempty"`
}

// OAuth2Config selects a stored OAuth token instead of basic auth.
type OAuth2Config struct {
	Enabled bool `yaml:"enabled"`
	// TokenName narrows the stored tokens of the owner to one.
	TokenName string `yaml:"token_name,omitempty"`
}

type EngineConfig struct {
	SprintLengthDays int                `yaml:"sprint_length_days,omitempty"`
	DefaultPoints    float64            `yaml:"default_points,omitempty"`
	Velocities       map[string]float64 `yaml:"velocities,omitempty"`
}

type MetricsConfig struct {
	// Addr enables the /metrics listener, e.g. ":9090".
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a config for the bundled fixture source.
func Default() *Config {
	return &Config{
		Owner: "local",
		Log:   logging.Config{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{
			Workers:           4,
			PredictionTimeout: 2 * time.Minute,
		},
		Store:  StoreConfig{Path: "etabot.db"},
		TMS:    TMSConfig{Type: TMSFixture, Fixture: "etabot-fixture.yaml"},
		Engine: EngineConfig{SprintLengthDays: 14, DefaultPoints: 1},
	}
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; pass --config or create it", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(NewEnv())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromYAML parses and validates raw YAML without environment overrides.
func FromYAML(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return cfg, nil
}

// NewEnv returns a viper instance reading ETABOT_ variables, with dots in
// keys mapped to underscores.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv overrides fields whose keys are set in v.
func (c *Config) ApplyEnv(v *viper.Viper) {
	setString(v, "owner", &c.Owner)
	setString(v, "log.level", &c.Log.Level)
	setString(v, "log.format", &c.Log.Format)
	setString(v, "log.file", &c.Log.File)
	setInt(v, "pipeline.workers", &c.Pipeline.Workers)
	if v.IsSet("pipeline.prediction_timeout") {
		c.Pipeline.PredictionTimeout = v.GetDuration("pipeline.prediction_timeout")
	}
	setString(v, "pipeline.report_dir", &c.Pipeline.ReportDir)
	setString(v, "store.path", &c.Store.Path)
	setString(v, "tms.type", &c.TMS.Type)
	setString(v, "tms.endpoint", &c.TMS.Endpoint)
	setString(v, "tms.username", &c.TMS.Username)
	setString(v, "tms.token", &c.TMS.Token)
	setString(v, "tms.fixture", &c.TMS.Fixture)
	if v.IsSet("tms.oauth2.enabled") {
		c.TMS.OAuth2.Enabled = v.GetBool("tms.oauth2.enabled")
	}
	setString(v, "email.from", &c.Email.From)
	if v.IsSet("email.to") {
		c.Email.To = strings.Split(v.GetString("email.to"), ",")
	}
	setString(v, "metrics.addr", &c.Metrics.Addr)
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

// Validate checks the fields a run relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Owner == "" {
		errs = append(errs, errors.New("config.owner is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config.log.level: %w", err))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("config.pipeline.workers must be positive"))
	}
	if c.Pipeline.PredictionTimeout <= 0 {
		errs = append(errs, errors.New("config.pipeline.prediction_timeout must be positive"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("config.store.path is required"))
	}

	switch c.TMS.Type {
	case TMSJira:
		if c.TMS.Endpoint == "" {
			errs = append(errs, errors.New("config.tms.endpoint is required for jira"))
		}
		if !c.TMS.OAuth2.Enabled && (c.TMS.Username == "" || c.TMS.Token == "") {
			errs = append(errs, errors.New("config.tms.username and token are required unless oauth2 is enabled"))
		}
	case TMSFixture:
		if c.TMS.Fixture == "" {
			errs = append(errs, errors.New("config.tms.fixture is required for the fixture source"))
		}
	default:
		errs = append(errs, fmt.Errorf("config.tms.type must be %q or %q, got %q", TMSJira, TMSFixture, c.TMS.Type))
	}

	if c.Engine.SprintLengthDays < 0 || c.Engine.DefaultPoints < 0 {
		errs = append(errs, errors.New("config.engine values must not be negative"))
	}

	seen := make(map[string]bool)
	for i, a := range c.Email.Adapters {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("config.email.adapters[%d] has no name", i))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("config.email.adapters: duplicate name %s", a.Name))
		}
		seen[a.Name] = true
		switch a.Type {
		case "smtp", "webhook", "slack", "file":
		default:
			errs = append(errs, fmt.Errorf("config.email.adapters[%d]: unknown type %q", i, a.Type))
		}
	}
	return errors.Join(errs...)
}

// SprintLength returns the engine sprint length.
func (c *Config) SprintLength() time.Duration {
	return time.Duration(c.Engine.SprintLengthDays) * 24 * time.Hour
}

// Package config loads the annotator's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/japaniel/annotator/pkg/annotate"
	"github.com/japaniel/annotator/pkg/llm"
	"github.com/japaniel/annotator/pkg/notify"
	"github.com/japaniel/annotator/pkg/tooltip"
)

// LogMode selects the zap logger preset.
type LogMode string

const (
	LogDevelopment LogMode = "development"
	LogProduction  LogMode = "production"
)

// IsValid reports whether m is a known mode.
func (m LogMode) IsValid() bool {
	return m == LogDevelopment || m == LogProduction
}

// Config is the full annotator configuration.
type Config struct {
	LogMode  LogMode        `yaml:"log_mode"`
	Database string         `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Annotate AnnotateConfig `yaml:"annotate"`
	Tooltip  TooltipConfig  `yaml:"tooltip"`
	Notify   NotifyConfig   `yaml:"notify"`
	Store    StoreConfig    `yaml:"store"`
}

// LLMConfig configures the language-model endpoint.
type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`

	// JSONResponse asks the endpoint for JSON output.
	JSONResponse bool `yaml:"json_response"`
}

// AnnotateConfig configures tuple validation and tooltip wording.
type AnnotateConfig struct {
	RequireTranslation bool   `yaml:"require_translation"`
	TranslationLabel   string `yaml:"translation_label"`
}

// TooltipConfig configures tooltip geometry, in CSS pixels, and the hide debounce.
type TooltipConfig struct {
	Gap        float64       `yaml:"gap"`
	MinTop     float64       `yaml:"min_top"`
	EdgeBuffer float64       `yaml:"edge_buffer"`
	HideDelay  time.Duration `yaml:"hide_delay"`
}

// NotifyConfig configures transient banner timing.
type NotifyConfig struct {
	Duration time.Duration `yaml:"duration"`
	Fade     time.Duration `yaml:"fade"`
}

// StoreConfig configures batched recording.
type StoreConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	tc := tooltip.DefaultConfig()
	nc := notify.DefaultConfig()
	return &Config{
		LogMode:  LogProduction,
		Database: "annotator.db",
		LLM: LLMConfig{
			BaseURL:      llm.DefaultBaseURL,
			Model:        llm.DefaultModel,
			Timeout:      60 * time.Second,
			MaxRetries:   2,
			JSONResponse: true,
		},
		Annotate: AnnotateConfig{
			RequireTranslation: true,
			TranslationLabel:   tc.TranslationLabel,
		},
		Tooltip: TooltipConfig{
			Gap:        tc.Gap,
			MinTop:     tc.MinTop,
			EdgeBuffer: tc.EdgeBuffer,
			HideDelay:  tc.HideDelay,
		},
		Notify: NotifyConfig{
			Duration: nc.Duration,
			Fade:     nc.Fade,
		},
		Store: StoreConfig{
			BatchSize:     50,
			FlushInterval: 100 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the result.
// Unknown keys are errors. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogMode.IsValid() {
		errs = append(errs, fmt.Errorf("log_mode %q is invalid; valid values: development, production", cfg.LogMode))
	}
	if strings.TrimSpace(cfg.Database) == "" {
		errs = append(errs, errors.New("database is required"))
	}

	if strings.TrimSpace(cfg.LLM.Model) == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		errs = append(errs, errors.New("llm.base_url is required"))
	}
	if cfg.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout %v must not be negative", cfg.LLM.Timeout))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries %d must not be negative", cfg.LLM.MaxRetries))
	}

	for name, v := range map[string]float64{
		"tooltip.gap":         cfg.Tooltip.Gap,
		"tooltip.min_top":     cfg.Tooltip.MinTop,
		"tooltip.edge_buffer": cfg.Tooltip.EdgeBuffer,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s %.1f must not be negative", name, v))
		}
	}
	if cfg.Tooltip.HideDelay < 0 {
		errs = append(errs, fmt.Errorf("tooltip.hide_delay %v must not be negative", cfg.Tooltip.HideDelay))
	}
	if cfg.Notify.Duration < 0 || cfg.Notify.Fade < 0 {
		errs = append(errs, errors.New("notify durations must not be negative"))
	}
	if cfg.Store.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("store.batch_size %d must be positive", cfg.Store.BatchSize))
	}
	if cfg.Store.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("store.flush_interval %v must not be negative", cfg.Store.FlushInterval))
	}

	return errors.Join(errs...)
}

// EngineOptions converts cfg into options for an annotation engine.
func (c *Config) EngineOptions(logger *zap.Logger) annotate.Options {
	opts := annotate.DefaultOptions()
	opts.RequireTranslation = c.Annotate.RequireTranslation
	opts.Tooltip = tooltip.Config{
		Geometry: tooltip.Geometry{
			Gap:        c.Tooltip.Gap,
			MinTop:     c.Tooltip.MinTop,
			EdgeBuffer: c.Tooltip.EdgeBuffer,
		},
		HideDelay:        c.Tooltip.HideDelay,
		TranslationLabel: c.Annotate.TranslationLabel,
	}
	opts.Notify = notify.Config{Duration: c.Notify.Duration, Fade: c.Notify.Fade}
	opts.Logger = logger
	return opts
}

// LLMOptions converts cfg into language-model client options.
func (c *Config) LLMOptions(logger *zap.Logger) []llm.Option {
	return []llm.Option{
		llm.WithBaseURL(c.LLM.BaseURL),
		llm.WithModel(c.LLM.Model),
		llm.WithTimeout(c.LLM.Timeout),
		llm.WithMaxRetries(c.LLM.MaxRetries),
		llm.WithJSONResponse(c.LLM.JSONResponse),
		llm.WithLogger(logger),
	}
}

// NewLogger builds the zap logger selected by LogMode.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.LogMode == LogDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

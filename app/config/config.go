// Package config loads presets file in YAML or TOML format
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jacvision/tunetrack/app/finetune"
)

// fallback hyper-parameters for adaptive presets, used when backend has no adaptive config for the model
const (
	DefaultBatchSize    = 4
	DefaultLearningRate = 2e-5
	DefaultEpochs       = 10
)

// Config is the content of presets file
type Config struct {
	Presets map[string]Preset `yaml:"presets" toml:"presets" json:"presets" jsonschema:"description=named model and dataset combinations"`
}

// Preset defines a fine-tuning request by name
type Preset struct {
	Model   string          `yaml:"model" toml:"model" json:"model" jsonschema:"required,description=model name as known to the backend"`
	Dataset string          `yaml:"dataset" toml:"dataset" json:"dataset" jsonschema:"required,description=dataset path"`
	AppName string          `yaml:"app_name,omitempty" toml:"app_name,omitempty" json:"app_name,omitempty" jsonschema:"description=app name for the trained model"`
	Hyper   *finetune.Hyper `yaml:"hyper,omitempty" toml:"hyper,omitempty" json:"hyper,omitempty" jsonschema:"description=hyper-parameters, switches to adaptive fine-tuning"`
}

// Load reads and parses the configuration file, format defined by extension: .yml, .yaml or .toml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint gosec
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q, use .yml, .yaml or .toml", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Fallback returns hyper-parameters for fields neither preset nor backend define
func Fallback() finetune.Hyper {
	return finetune.Hyper{BatchSize: DefaultBatchSize, LearningRate: DefaultLearningRate, Epochs: DefaultEpochs}
}

// Validate checks every preset makes a valid request. Missing hyper-parameters are filled on submit,
// so only the defined ones are checked.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.Names() {
		req := c.Presets[name].Request("")
		if req.Hyper != nil {
			req.Hyper.Fill(Fallback())
		}
		if err := req.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preset %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns sorted preset names
func (c *Config) Names() []string {
	res := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Preset returns preset by name
func (c *Config) Preset(name string) (Preset, error) {
	p, ok := c.Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found, known presets: %s", name, strings.Join(c.Names(), ", "))
	}
	return p, nil
}

// Request makes fine-tuning request from preset, appName used if preset doesn't define one.
// Hyper-parameters missing in preset stay zero.
func (p Preset) Request(appName string) finetune.Request {
	res := finetune.Request{Model: p.Model, Dataset: p.Dataset, AppName: p.AppName}
	if res.AppName == "" {
		res.AppName = appName
	}
	if p.Hyper != nil {
		h := *p.Hyper
		res.Hyper = &h
	}
	return res
}

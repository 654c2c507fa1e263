package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/exampleco/sensorcube/internal/cube"
)

const (
	EnvSource         = "SENSORCUBE_SOURCE"
	EnvStaticTable    = "SENSORCUBE_STATIC_TABLE"
	EnvMetricsPushURL = "SENSORCUBE_METRICS_PUSH_URL"
)

// Config is the run configuration as read from a YAML file, the environment
// and command line flags, in increasing order of precedence.
type Config struct {
	Source          string `yaml:"source"`
	StaticTable     string `yaml:"static_table"`
	TimestampColumn string `yaml:"timestamp_column"`
	MachineColumn   string `yaml:"machine_column"`
	ValueColumn     string `yaml:"value_column"`
	Features        int    `yaml:"features"`
	TimeSteps       int    `yaml:"time_steps"`
	Machines        int    `yaml:"machines"`
	Layout          string `yaml:"layout"`
	PreviewRows     int    `yaml:"preview_rows"`
	MetricsPushURL  string `yaml:"metrics_push_url"`
}

func Default() Config {
	return Config{
		TimestampColumn: "timestamp",
		MachineColumn:   "machine",
		ValueColumn:     "value",
		Features:        4,
		Layout:          cube.LayoutMachineMajor.String(),
		PreviewRows:     20,
	}
}

// Load returns the defaults overlaid with the YAML file at path. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SENSORCUBE_* variables that are set and
// non-empty.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSource); ok && v != "" {
		c.Source = v
	}
	if v, ok := lookup(EnvStaticTable); ok && v != "" {
		c.StaticTable = v
	}
	if v, ok := lookup(EnvMetricsPushURL); ok && v != "" {
		c.MetricsPushURL = v
	}
}

func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source is required (flag --source, config key source or %s)", EnvSource)
	}
	if c.TimestampColumn == "" || c.MachineColumn == "" || c.ValueColumn == "" {
		return errors.New("timestamp, machine and value columns are required")
	}
	if c.Features <= 0 {
		return errors.New("features must be > 0")
	}
	if c.TimeSteps < 0 {
		return errors.New("time steps must be >= 0")
	}
	if c.Machines < 0 {
		return errors.New("machines must be >= 0")
	}
	if c.PreviewRows < 0 {
		return errors.New("preview rows must be >= 0")
	}
	if _, err := cube.ParseLayout(c.Layout); err != nil {
		return err
	}
	return nil
}

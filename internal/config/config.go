// Package config loads the station's deployment configuration and
// holds the operator-entered settings.
//
// The deployment file (YAML) is chosen by the --config flag or the
// STATION_CONFIG environment variable. It fixes what the operator never
// edits: protocol mode, service paths and payload field names, timing.
// Operator settings (endpoint URL, credential, category, volunteer
// code) live behind a Provider and are re-read after every save.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects the protocol the fulfillment service speaks.
type Mode string

const (
	SingleStep Mode = "single-step"
	TwoStep    Mode = "two-step"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	// Listen is the address of the local station API.
	Listen string `yaml:"listen"`

	// APIToken protects the local station API. Empty disables the check.
	APIToken string `yaml:"api_token"`

	Service ServiceConfig `yaml:"service"`
	Timing  TimingConfig  `yaml:"timing"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type ServiceConfig struct {
	Paths  PathsConfig  `yaml:"paths"`
	Fields FieldsConfig `yaml:"fields"`

	// RequestTimeout bounds each call; a stuck call otherwise leaves
	// the station loading until the transport gives up.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CAFile or directory of PEM certificates trusted in addition to
	// the system roots.
	CAFile string `yaml:"ca_file"`
}

// PathsConfig holds the service paths, joined onto the operator's
// endpoint URL. A path of "" posts to the endpoint URL itself.
type PathsConfig struct {
	Lookup  string `yaml:"lookup"`
	Deliver string `yaml:"deliver"`
	Submit  string `yaml:"submit"`
}

// FieldsConfig names the request payload fields.
type FieldsConfig struct {
	Code          string `yaml:"code"`
	VolunteerCode string `yaml:"volunteer_code"`
	Category      string `yaml:"category"`
	OrderID       string `yaml:"order_id"`
}

type TimingConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`
	RevertDelay time.Duration `yaml:"revert_delay"`
}

type StorageConfig struct {
	SettingsFile string `yaml:"settings_file"`
	KeyFile      string `yaml:"key_file"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used for any field the file leaves
// unset.
func Default() *Config {
	return &Config{
		Mode:   TwoStep,
		Listen: "127.0.0.1:8787",
		Service: ServiceConfig{
			Paths: PathsConfig{
				Lookup:  "/lookup",
				Deliver: "/deliver",
				Submit:  "/submit",
			},
			Fields: FieldsConfig{
				Code:          "code",
				VolunteerCode: "volunteerCode",
				Category:      "category",
				OrderID:       "orderId",
			},
			RequestTimeout: 15 * time.Second,
		},
		Timing: TimingConfig{
			Cooldown:    100 * time.Millisecond,
			RevertDelay: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			SettingsFile: "settings.json",
			KeyFile:      "master.key",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the file named by STATION_CONFIG. With the variable unset
// it returns Default.
func Load() (*Config, error) {
	path := os.Getenv("STATION_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over Default and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case SingleStep, TwoStep:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", SingleStep, TwoStep, c.Mode))
	}
	if c.Timing.Cooldown <= 0 {
		errs = append(errs, errors.New("timing.cooldown must be positive"))
	}
	if c.Timing.RevertDelay <= 0 {
		errs = append(errs, errors.New("timing.revert_delay must be positive"))
	}
	if c.Service.RequestTimeout <= 0 {
		errs = append(errs, errors.New("service.request_timeout must be positive"))
	}
	f := c.Service.Fields
	if f.Code == "" || f.VolunteerCode == "" || f.Category == "" || f.OrderID == "" {
		errs = append(errs, errors.New("service.fields entries must not be empty"))
	}
	return errors.Join(errs...)
}

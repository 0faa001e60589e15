// Package config loads and validates the bridge configuration, including
// the YAML file format describing which topics to bridge between which
// domains.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	bridgepkg "github.com/openrelay/domainbridge/internal/bridge"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// Config groups the settings required to run a bridge process.
type Config struct {
	// Name is the node name this process advertises on its endpoints.
	Name string `yaml:"name"`

	// Fabric selects the backend. Supported values: "memory", "nats".
	Fabric string `yaml:"fabric"`

	// NATS configuration.
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	// FromDomain and ToDomain are the default domain pair for topics that
	// do not override them.
	FromDomain int `yaml:"from_domain"`
	ToDomain   int `yaml:"to_domain"`

	// Metrics configuration.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int `yaml:"metrics_port"`

	// Topics maps topic names to their bridge settings.
	Topics map[string]TopicEntry `yaml:"topics"`
}

// TopicEntry is the per-topic bridge configuration.
type TopicEntry struct {
	// Type is the message type name, e.g. "example_interfaces.msg.String".
	Type string `yaml:"type"`

	// Remap publishes under this name in the destination domain.
	Remap string `yaml:"remap"`

	// FromDomain and ToDomain override the config-level domain pair.
	FromDomain *int `yaml:"from_domain"`
	ToDomain   *int `yaml:"to_domain"`

	// Mode selects the QoS resolution mode: "exact_mirror" (default),
	// "best_available", or "override". A qos block implies "override"
	// unless mode says otherwise.
	Mode string `yaml:"mode"`

	// QoS is the explicit profile for override mode.
	QoS *QoSEntry `yaml:"qos"`
}

// QoSEntry is the YAML form of a QoS profile. Durations use Go duration
// strings ("123.456s"); empty means unset.
type QoSEntry struct {
	Reliability string `yaml:"reliability"`
	Durability  string `yaml:"durability"`
	Liveliness  string `yaml:"liveliness"`
	History     string `yaml:"history"`
	Depth       int    `yaml:"depth"`
	Deadline    string `yaml:"deadline"`
	Lifespan    string `yaml:"lifespan"`
}

// Getter methods to implement fabric.Config.
func (c *Config) GetFabricSystem() string      { return c.Fabric }
func (c *Config) GetNodeName() string          { return c.Name }
func (c *Config) GetNATSURL() string           { return c.NATSURL }
func (c *Config) GetNATSSubjectPrefix() string { return c.NATSSubjectPrefix }

// LoadFile reads and validates a YAML bridge configuration.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable. Returns an error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateDomains()...)
	errs = append(errs, c.validateFabric()...)
	errs = append(errs, c.validateTopics()...)

	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}

	return errors.Join(errs...)
}

func (c *Config) validateDomains() []error {
	var errs []error
	if c.FromDomain < 0 {
		errs = append(errs, errors.New("from_domain cannot be negative"))
	}
	if c.ToDomain < 0 {
		errs = append(errs, errors.New("to_domain cannot be negative"))
	}
	return errs
}

func (c *Config) validateFabric() []error {
	switch strings.ToLower(c.Fabric) {
	case "nats":
		if c.NATSURL == "" {
			return []error{errors.New("nats: URL is required")}
		}
	}
	// memory, "", and custom fabrics have no required config
	return nil
}

func (c *Config) validateTopics() []error {
	var errs []error
	for name, entry := range c.Topics {
		if entry.Type == "" {
			errs = append(errs, fmt.Errorf("topic %q: type is required", name))
		}
		if _, err := entry.mode(); err != nil {
			errs = append(errs, fmt.Errorf("topic %q: %w", name, err))
		}
		if entry.QoS != nil {
			if _, err := entry.QoS.Profile(); err != nil {
				errs = append(errs, fmt.Errorf("topic %q: %w", name, err))
			}
		}
		from, to := c.domainPair(entry)
		if from == to {
			errs = append(errs, fmt.Errorf("topic %q: source and destination domains must differ", name))
		}
	}
	return errs
}

// TopicOptions converts the configured topics into bridge options.
func (c *Config) TopicOptions() ([]bridgepkg.TopicOptions, error) {
	opts := make([]bridgepkg.TopicOptions, 0, len(c.Topics))
	for name, entry := range c.Topics {
		mode, err := entry.mode()
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", name, err)
		}

		o := bridgepkg.TopicOptions{
			Topic:    name,
			TypeName: entry.Type,
			Remap:    entry.Remap,
			Mode:     mode,
		}
		o.FromDomain, o.ToDomain = c.domainPair(entry)

		if entry.QoS != nil {
			profile, err := entry.QoS.Profile()
			if err != nil {
				return nil, fmt.Errorf("topic %q: %w", name, err)
			}
			o.Override = &profile
		}
		opts = append(opts, o)
	}
	return opts, nil
}

func (c *Config) domainPair(entry TopicEntry) (from, to int) {
	from, to = c.FromDomain, c.ToDomain
	if entry.FromDomain != nil {
		from = *entry.FromDomain
	}
	if entry.ToDomain != nil {
		to = *entry.ToDomain
	}
	return from, to
}

func (e TopicEntry) mode() (qos.Mode, error) {
	switch strings.ToLower(e.Mode) {
	case "", "exact_mirror":
		if e.QoS != nil {
			return qos.ModeOverride, nil
		}
		return qos.ModeExactMirror, nil
	case "best_available":
		return qos.ModeBestAvailable, nil
	case "override":
		if e.QoS == nil {
			return 0, errors.New("override mode requires a qos block")
		}
		return qos.ModeOverride, nil
	}
	return 0, fmt.Errorf("unknown mode %q", e.Mode)
}

// Profile converts the YAML QoS form into a profile. Unset durations map to
// the unset sentinel, not zero.
func (e QoSEntry) Profile() (qos.Profile, error) {
	p := qos.DefaultProfile()
	var errs []error

	switch strings.ToLower(e.Reliability) {
	case "", "reliable":
		p.Reliability = qos.Reliable
	case "best_effort":
		p.Reliability = qos.BestEffort
	default:
		errs = append(errs, fmt.Errorf("unknown reliability %q", e.Reliability))
	}

	switch strings.ToLower(e.Durability) {
	case "", "volatile":
		p.Durability = qos.Volatile
	case "transient_local":
		p.Durability = qos.TransientLocal
	default:
		errs = append(errs, fmt.Errorf("unknown durability %q", e.Durability))
	}

	switch strings.ToLower(e.Liveliness) {
	case "", "automatic":
		p.Liveliness = qos.Automatic
	case "manual_by_topic":
		p.Liveliness = qos.ManualByTopic
	default:
		errs = append(errs, fmt.Errorf("unknown liveliness %q", e.Liveliness))
	}

	switch strings.ToLower(e.History) {
	case "", "keep_last":
		p.History = qos.KeepLast
	case "keep_all":
		p.History = qos.KeepAll
	default:
		errs = append(errs, fmt.Errorf("unknown history %q", e.History))
	}
	if e.Depth > 0 {
		p.Depth = e.Depth
	} else if e.Depth < 0 {
		errs = append(errs, fmt.Errorf("depth cannot be negative, got %d", e.Depth))
	}

	if e.Deadline != "" {
		d, err := time.ParseDuration(e.Deadline)
		if err != nil {
			errs = append(errs, fmt.Errorf("deadline: %w", err))
		} else {
			p.Deadline = d
		}
	}
	if e.Lifespan != "" {
		d, err := time.ParseDuration(e.Lifespan)
		if err != nil {
			errs = append(errs, fmt.Errorf("lifespan: %w", err))
		} else {
			p.Lifespan = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return qos.Profile{}, err
	}
	return p, nil
}

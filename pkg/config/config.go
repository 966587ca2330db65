// Package config loads the netsecd configuration file.
//
// The file is YAML. It names the monitored networks, the Keystone credentials used
// to reach Neutron, and one policy per monitored network:
//
//	networks: [net-a]
//	interval: 60
//	keystone:
//	  username: admin
//	  password: secret
//	  project_name: admin
//	  auth_url: http://keystone:5000
//	network:
//	  net-a:
//	    securitygroups: [sg-web]
//	    delete_others: false
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aojea/netsec-controller/pkg/networkpolicy"
)

// DefaultPath is where the configuration is read from when no path is given.
const DefaultPath = "netsec.yaml"

const (
	defaultInterval   = 60
	defaultDomainName = "default"
	defaultInterface  = "public"
)

var validate = validator.New()

// Config is the whole configuration file.
type Config struct {
	Networks       []string           `yaml:"networks" validate:"required,min=1,unique,dive,required"`
	Interval       int                `yaml:"interval" validate:"gt=0"`
	Workers        int                `yaml:"workers" validate:"gte=1"`
	UpdateQPS      float32            `yaml:"update_qps" validate:"gte=0"`
	UpdateBurst    int                `yaml:"update_burst" validate:"gte=1"`
	MetricsAddress string             `yaml:"metrics_address" validate:"omitempty,hostname_port"`
	Keystone       Keystone           `yaml:"keystone"`
	Network        map[string]Network `yaml:"network" validate:"dive"`
}

// Keystone holds the credentials for the identity service.
type Keystone struct {
	Username          string `yaml:"username" validate:"required"`
	Password          string `yaml:"password" validate:"required"`
	UserDomainName    string `yaml:"user_domain_name"`
	ProjectDomainName string `yaml:"project_domain_name"`
	ProjectName       string `yaml:"project_name" validate:"required"`
	AuthURL           string `yaml:"auth_url" validate:"required,url"`
	RegionName        string `yaml:"region_name"`
	Interface         string `yaml:"interface" validate:"oneof=public internal admin"`
}

// Network is the policy of a single monitored network.
type Network struct {
	SecurityGroups []string `yaml:"securitygroups" validate:"required,min=1,dive,required"`
	Exempt         []string `yaml:"exempt"`
	Owners         []string `yaml:"owners"`
	DeleteOthers   *bool    `yaml:"delete_others"`
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.UpdateBurst == 0 {
		c.UpdateBurst = 1
	}
	if c.Keystone.UserDomainName == "" {
		c.Keystone.UserDomainName = defaultDomainName
	}
	if c.Keystone.ProjectDomainName == "" {
		c.Keystone.ProjectDomainName = defaultDomainName
	}
	if c.Keystone.Interface == "" {
		c.Keystone.Interface = defaultInterface
	}
}

// Validate checks the field constraints and that every monitored network has a policy.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, id := range c.Networks {
		if _, ok := c.Network[id]; !ok {
			return fmt.Errorf("invalid config: no network section for monitored network %q", id)
		}
	}
	return nil
}

// IntervalDuration is the time between the start of two reconciliation passes.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// Policies returns the policy of every monitored network, in the configured order.
func (c *Config) Policies() []networkpolicy.Policy {
	policies := make([]networkpolicy.Policy, 0, len(c.Networks))
	for _, id := range c.Networks {
		n := c.Network[id]
		mode := networkpolicy.Replace
		if n.DeleteOthers != nil && !*n.DeleteOthers {
			mode = networkpolicy.Append
		}
		policies = append(policies, networkpolicy.NewPolicy(id, n.SecurityGroups, n.Exempt, n.Owners, mode))
	}
	return policies
}

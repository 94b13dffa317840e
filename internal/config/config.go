// Package config loads the TOML configuration of the LinkIOT binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Node     Node     `toml:"node"`
	Etcd     Etcd     `toml:"etcd"`
	Log      Log      `toml:"log"`
	Delivery Delivery `toml:"delivery"`
	Gateway  Gateway  `toml:"gateway"`
	Services Services `toml:"services"`
}

type Node struct {
	Name string `toml:"name"`
	// Group restricts outgoing calls to instances of the same group. Empty
	// means any group.
	Group string `toml:"group"`
}

type Etcd struct {
	Endpoints   []string      `toml:"endpoints"`
	DialTimeout time.Duration `toml:"dial_timeout"`
	// TTL of the registration lease, in seconds.
	TTL int `toml:"ttl"`
	// Timeout of a single registry operation.
	Timeout time.Duration `toml:"timeout"`
}

type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type Delivery struct {
	SendTimeout time.Duration `toml:"send_timeout"`
	Serializer  string        `toml:"serializer"`
	Compressor  string        `toml:"compressor"`
	Tracing     bool          `toml:"tracing"`
}

type Gateway struct {
	Addr        string        `toml:"addr"`
	MetricsAddr string        `toml:"metrics_addr"`
	BodyLimit   int64         `toml:"body_limit"`
	Timeout     time.Duration `toml:"timeout"`
}

type Services struct {
	DeviceManager string `toml:"device_manager"`
	DataHandle    string `toml:"data_handle"`
	Balancer      string `toml:"balancer"`
}

const (
	BalancerRoundRobin       = "round_robin"
	BalancerWeightRoundRobin = "weight_round_robin"
	BalancerRandom           = "random"
	BalancerWeightRandom     = "weight_random"
	BalancerLeastActive      = "least_active"
)

var (
	serializers = []string{"json", "proto"}
	compressors = []string{"none", "gzip", "lz4", "snappy", "zlib"}
	balancers   = []string{BalancerRoundRobin, BalancerWeightRoundRobin, BalancerRandom,
		BalancerWeightRandom, BalancerLeastActive}
	levels = []string{"debug", "info", "warn", "error"}
)

func Default() *Config {
	return &Config{
		Node: Node{Name: "linkgateway"},
		Etcd: Etcd{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: time.Second * 3,
			TTL:         10,
			Timeout:     time.Second * 3,
		},
		Log: Log{Level: "info"},
		Delivery: Delivery{
			SendTimeout: time.Second * 30,
			Serializer:  "json",
			Compressor:  "none",
		},
		Gateway: Gateway{
			Addr:        ":28080",
			MetricsAddr: ":9090",
			BodyLimit:   100 * 1024,
			Timeout:     time.Second * 30,
		},
		Services: Services{
			DeviceManager: "device-manager",
			DataHandle:    "data-handle",
			Balancer:      BalancerRoundRobin,
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, check(meta, cfg)
}

// Parse is Load for an in-memory document.
func Parse(data string) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, check(meta, cfg)
}

func check(meta toml.MetaData, cfg *Config) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("config: unknown keys %s", strings.Join(keys, ", "))
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Etcd.Endpoints) == 0 {
		errs = append(errs, errors.New("etcd.endpoints is empty"))
	}
	if c.Etcd.TTL <= 0 {
		errs = append(errs, fmt.Errorf("etcd.ttl must be positive, got %d", c.Etcd.TTL))
	}
	if c.Delivery.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("delivery.send_timeout must be positive, got %s", c.Delivery.SendTimeout))
	}
	errs = append(errs,
		oneOf("log.level", c.Log.Level, levels),
		oneOf("delivery.serializer", c.Delivery.Serializer, serializers),
		oneOf("delivery.compressor", c.Delivery.Compressor, compressors),
		oneOf("services.balancer", c.Services.Balancer, balancers),
	)
	if c.Gateway.Addr == "" {
		errs = append(errs, errors.New("gateway.addr is empty"))
	}
	if c.Gateway.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("gateway.body_limit must be positive, got %d", c.Gateway.BodyLimit))
	}
	if c.Services.DeviceManager == "" || c.Services.DataHandle == "" {
		errs = append(errs, errors.New("services.device_manager and services.data_handle are required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func oneOf(key, val string, allowed []string) error {
	for _, a := range allowed {
		if a == val {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), val)
}

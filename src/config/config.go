// Package config is used to records the service configurations
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skycoin/skycoin/src/cipher"
	"github.com/spf13/viper"

	"github.com/kittycash/kittymarket/src/genes"
)

// Config represents the configuration root
type Config struct {
	// Enable debug logging
	Debug bool `mapstructure:"debug"`
	// Where log is saved
	LogFilename string `mapstructure:"logfile"`
	// Where database is saved
	DBFilename string `mapstructure:"dbfile"`

	Registry Registry `mapstructure:"registry"`
	Market   Market   `mapstructure:"market"`
	Web      Web      `mapstructure:"web"`
	Redis    Redis    `mapstructure:"redis"`
}

// Registry config for the kitty registry
type Registry struct {
	Name   string `mapstructure:"name"`
	Symbol string `mapstructure:"symbol"`
	// Identity of the registry itself. Kitties can never be sent to it.
	Address string `mapstructure:"address"`
	// Minting authority, the only address allowed to mint founders and deposit funds
	Minter string `mapstructure:"minter"`
	// Max number of generation 0 kitties
	Gen0Limit uint64 `mapstructure:"gen0_limit"`
	// How a child's generation derives from its parents
	GenerationPolicy string `mapstructure:"generation_policy"`
}

// Market config for the marketplace
type Market struct {
	// Identity sellers grant operator rights to
	Address string `mapstructure:"address"`
}

// Web config for the HTTP interface
type Web struct {
	HTTPAddr     string        `mapstructure:"http_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Validate validates Web config
func (c Web) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("web.http_addr missing")
	}

	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return errors.New("web timeouts can't be negative")
	}

	return nil
}

// Redis config for publishing notifications to redis
type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Database int    `mapstructure:"database"`
	Password string `mapstructure:"password"`
	Channel  string `mapstructure:"channel"`
}

// RegistryAddress returns the decoded registry.address
func (c Config) RegistryAddress() cipher.Address {
	return mustDecode(c.Registry.Address)
}

// MinterAddress returns the decoded registry.minter
func (c Config) MinterAddress() cipher.Address {
	return mustDecode(c.Registry.Minter)
}

// MarketAddress returns the decoded market.address
func (c Config) MarketAddress() cipher.Address {
	return mustDecode(c.Market.Address)
}

// GenerationPolicy returns the configured generation policy
func (c Config) GenerationPolicy() genes.GenerationPolicy {
	p, err := genes.PolicyByName(c.Registry.GenerationPolicy)
	if err != nil {
		panic(err)
	}
	return p
}

func mustDecode(s string) cipher.Address {
	addr, err := cipher.DecodeBase58Address(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// Redacted returns a copy of the config with sensitive information redacted
func (c Config) Redacted() Config {
	if c.Redis.Password != "" {
		c.Redis.Password = "<redacted>"
	}

	return c
}

// Validate validates the config
func (c Config) Validate() error {
	var errs []string
	oops := func(err string) {
		errs = append(errs, err)
	}

	if c.DBFilename == "" {
		oops("dbfile missing")
	}

	addrs := map[string]string{
		"registry.address": c.Registry.Address,
		"registry.minter":  c.Registry.Minter,
		"market.address":   c.Market.Address,
	}
	for _, k := range []string{"registry.address", "registry.minter", "market.address"} {
		if addrs[k] == "" {
			oops(k + " missing")
		} else if _, err := cipher.DecodeBase58Address(addrs[k]); err != nil {
			oops(fmt.Sprintf("%s is invalid: %v", k, err))
		}
	}

	if c.Registry.Address != "" && c.Registry.Address == c.Market.Address {
		oops("registry.address and market.address must differ")
	}

	if c.Registry.Gen0Limit == 0 {
		oops("registry.gen0_limit must be > 0")
	}

	if _, err := genes.PolicyByName(c.Registry.GenerationPolicy); err != nil {
		oops(fmt.Sprintf("registry.generation_policy must be one of %s", strings.Join(genes.PolicyNames(), ", ")))
	}

	if err := c.Web.Validate(); err != nil {
		oops(err.Error())
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			oops("redis.address missing")
		}
		if c.Redis.Channel == "" {
			oops("redis.channel missing")
		}
		if c.Redis.Database < 0 {
			oops("redis.database must be >= 0")
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.New(strings.Join(errs, "\n"))
}

func setDefaults(v *viper.Viper) {
	// Top-level args
	v.SetDefault("debug", true)
	v.SetDefault("logfile", "./kittymarket.log")
	v.SetDefault("dbfile", "kittymarket.db")

	// Registry
	v.SetDefault("registry.name", "FilipKitties")
	v.SetDefault("registry.symbol", "FK")
	v.SetDefault("registry.gen0_limit", uint64(10))
	v.SetDefault("registry.generation_policy", genes.PolicyMaxPlusOne)

	// Web
	v.SetDefault("web.http_addr", "127.0.0.1:7071")
	v.SetDefault("web.read_timeout", time.Second*10)
	v.SetDefault("web.write_timeout", time.Second*60)
	v.SetDefault("web.idle_timeout", time.Second*120)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.channel", "kittymarket:events")
}

// Load loads the configuration from "./$configName.*" where "*" is a
// JSON, toml or yaml file (toml preferred). Keys can be overridden by
// KITTYMARKET_ prefixed environment variables, e.g. KITTYMARKET_WEB_HTTP_ADDR.
func Load(configName, appDir string) (Config, error) {
	if strings.HasSuffix(configName, ".toml") {
		configName = configName[:len(configName)-len(".toml")]
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath(appDir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("kittymarket")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := Config{}

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

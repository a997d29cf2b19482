package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	v *viper.Viper
}

func New() (*Config, error) {
	v := viper.New()

	// default values
	for _, o := range RunOptions {
		v.SetDefault(o.Key, o.Default)
	}

	// load config from file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/resource-adapter/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// load config from environment variables
	v.SetEnvPrefix("ADAPTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

func (c *Config) Kubeconfig() string {
	return c.v.GetString(keyKubeconfig) // ADAPTER_KUBECONFIG
}

func (c *Config) DatabasePath() string {
	return c.v.GetString(keyDatabasePath) // ADAPTER_DATABASE_PATH
}

func (c *Config) OpsAddress() string {
	return c.v.GetString(keyOpsAddress) // ADAPTER_OPS_ADDRESS
}

func (c *Config) OpsAllowedOrigins() []string {
	return c.v.GetStringSlice(keyOpsAllowedOrigins) // ADAPTER_OPS_ALLOWED_ORIGINS
}

func (c *Config) OpsBearerToken() string {
	return c.v.GetString(keyOpsBearerToken) // ADAPTER_OPS_BEARER_TOKEN
}

func (c *Config) RegistrationPollInterval() time.Duration {
	return c.v.GetDuration(keyRegistrationPollInterval) // ADAPTER_REGISTRATION_POLL_INTERVAL
}

func (c *Config) RegistrationTimeout() time.Duration {
	return c.v.GetDuration(keyRegistrationTimeout) // ADAPTER_REGISTRATION_TIMEOUT
}

func (c *Config) WatchBackoffBase() time.Duration {
	return c.v.GetDuration(keyWatchBackoffBase) // ADAPTER_WATCH_BACKOFF_BASE
}

func (c *Config) WatchBackoffMax() time.Duration {
	return c.v.GetDuration(keyWatchBackoffMax) // ADAPTER_WATCH_BACKOFF_MAX
}

func (c *Config) ShutdownTimeout() time.Duration {
	return c.v.GetDuration(keyShutdownTimeout) // ADAPTER_SHUTDOWN_TIMEOUT
}

func (c *Config) LeaderEnabled() bool {
	return c.v.GetBool(keyLeaderEnabled) // ADAPTER_LEADER_ENABLED
}

func (c *Config) LeaderNamespace() string {
	return c.v.GetString(keyLeaderNamespace) // ADAPTER_LEADER_NAMESPACE
}

func (c *Config) LeaderLeaseName() string {
	return c.v.GetString(keyLeaderLeaseName) // ADAPTER_LEADER_LEASE_NAME
}

func (c *Config) MirrorNamespace() string {
	return c.v.GetString(keyMirrorNamespace) // ADAPTER_MIRROR_NAMESPACE
}

func (c *Config) DebugEnabled() bool {
	return c.v.GetBool(keyDebugEnabled) // ADAPTER_DEBUG_ENABLED
}

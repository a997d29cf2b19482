// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix ADAPTER_)
//  3. Config file (config.yaml in . or /etc/resource-adapter/)
//  4. Compiled defaults
package config

// Viper keys.
const (
	keyKubeconfig               = "kubeconfig"
	keyDatabasePath             = "database.path"
	keyOpsAddress               = "ops.address"
	keyOpsAllowedOrigins        = "ops.allowed_origins"
	keyOpsBearerToken           = "ops.bearer_token"
	keyRegistrationPollInterval = "registration.poll_interval"
	keyRegistrationTimeout      = "registration.timeout"
	keyWatchBackoffBase         = "watch.backoff_base"
	keyWatchBackoffMax          = "watch.backoff_max"
	keyShutdownTimeout          = "shutdown.timeout"
	keyLeaderEnabled            = "leader.enabled"
	keyLeaderNamespace          = "leader.namespace"
	keyLeaderLeaseName          = "leader.lease_name"
	keyMirrorNamespace          = "mirror.namespace"
	keyDebugEnabled             = "debug.enabled"
)

package config

import (
	"strings"
	"time"
)

// Option describes a single configuration entry: its viper key, the
// corresponding CLI flag name, the compiled default, and a
// human-readable description shown in --help output.
type Option struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

// RunOptions defines the configuration entries of the run command.
// Each entry is registered as a viper default and a CLI flag.
var RunOptions = []Option{
	{Key: keyKubeconfig, Flag: toFlag(keyKubeconfig), Default: "", Description: "Path to a kubeconfig; empty uses the in-cluster config"},
	{Key: keyDatabasePath, Flag: toFlag(keyDatabasePath), Default: "resource-adapter.db", Description: "SQLite file holding resource state and watch cursors"},
	{Key: keyOpsAddress, Flag: toFlag(keyOpsAddress), Default: ":8299", Description: "Listen address for health and metrics"},
	{Key: keyOpsAllowedOrigins, Flag: toFlag(keyOpsAllowedOrigins), Default: []string{}, Description: "CORS origins allowed on the ops endpoint"},
	{Key: keyOpsBearerToken, Flag: toFlag(keyOpsBearerToken), Default: "", Description: "Bearer token required for metrics and reflection; empty leaves them open"},
	{Key: keyRegistrationPollInterval, Flag: toFlag(keyRegistrationPollInterval), Default: time.Second, Description: "Interval between kind visibility checks"},
	{Key: keyRegistrationTimeout, Flag: toFlag(keyRegistrationTimeout), Default: 30 * time.Second, Description: "How long a registered kind may take to become visible"},
	{Key: keyWatchBackoffBase, Flag: toFlag(keyWatchBackoffBase), Default: 500 * time.Millisecond, Description: "Initial reconnect delay of a watch"},
	{Key: keyWatchBackoffMax, Flag: toFlag(keyWatchBackoffMax), Default: 30 * time.Second, Description: "Maximum reconnect delay of a watch"},
	{Key: keyShutdownTimeout, Flag: toFlag(keyShutdownTimeout), Default: 15 * time.Second, Description: "Bound on waiting for watch loops to stop"},
	{Key: keyLeaderEnabled, Flag: toFlag(keyLeaderEnabled), Default: false, Description: "Only reconcile while holding the leader lease"},
	{Key: keyLeaderNamespace, Flag: toFlag(keyLeaderNamespace), Default: "", Description: "Namespace of the leader lease; detected when empty"},
	{Key: keyLeaderLeaseName, Flag: toFlag(keyLeaderLeaseName), Default: "resource-adapter-leader", Description: "Name of the leader lease"},
	{Key: keyMirrorNamespace, Flag: toFlag(keyMirrorNamespace), Default: "default", Description: "Namespace for mirrored ConfigMaps when a mirror names none"},
	{Key: keyDebugEnabled, Flag: toFlag(keyDebugEnabled), Default: false, Description: "Enable debug logging"},
}

// toFlag converts a viper key like "registration.poll_interval" into a
// CLI flag like "registration-poll-interval" by lower-casing and
// replacing dots and underscores with hyphens. A trailing "-enabled"
// is dropped, so "debug.enabled" becomes "debug".
func toFlag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimSuffix(flag, "-enabled")
	return flag
}

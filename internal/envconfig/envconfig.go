// Package envconfig holds process-wide feature flags read once from the
// environment, in the getEnv-with-default style common across grpc-go's
// own internal config packages.
package envconfig

import "os"

// XDSEnableTimeout reports whether the config selector should emit
// per-method timeouts in the generated service config, gated by the
// GRPC_XDS_EXPERIMENTAL_ENABLE_TIMEOUT environment variable. Unset or
// "true" enables it; "false" disables it. Computed once at package init,
// since this is a process-wide flag, not a per-resolver setting.
var XDSEnableTimeout = boolEnv("GRPC_XDS_EXPERIMENTAL_ENABLE_TIMEOUT", true)

func boolEnv(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return v != "false"
}

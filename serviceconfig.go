package xdsresolver

import "fmt"

// buildLBServiceConfig builds the cluster-manager load-balancing service
// config naming every cluster currently present in the reference table.
// clusterNames may be in any order; the output is deterministic
// regardless, since JSON object key order is not semantically
// significant to the parser.
func buildLBServiceConfig(clusterNames []string) map[string]any {
	children := make(map[string]any, len(clusterNames))
	for _, name := range clusterNames {
		children[name] = map[string]any{
			"lbPolicy": []any{
				map[string]any{
					"cds_experimental": map[string]any{
						"cluster": name,
					},
				},
			},
		}
	}
	return map[string]any{
		"loadBalancingConfig": []any{
			map[string]any{
				"cluster_manager_experimental": map[string]any{
					"childPolicy": children,
				},
			},
		},
	}
}

// buildMethodTimeoutConfig builds the per-method timeout service config
// for a single outgoing call. Callers only invoke this when the
// effective timeout is enabled and strictly positive; there is no
// "disabled" shape here, since the caller emits emptyServiceConfig in
// that case instead of calling this at all.
func buildMethodTimeoutConfig(timeoutNano int64) map[string]any {
	return map[string]any{
		"methodConfig": []any{
			map[string]any{
				"name":    []any{map[string]any{}},
				"timeout": formatTimeout(timeoutNano),
			},
		},
	}
}

// formatTimeout renders nano nanoseconds as "<seconds>.<nnnnnnnnn>s": a
// whole-second count followed by a fixed nine-digit nanosecond fraction,
// e.g. formatTimeout(1000000001) == "1.000000001s".
func formatTimeout(nano int64) string {
	seconds := nano / 1e9
	frac := nano % 1e9
	return fmt.Sprintf("%d.%09ds", seconds, frac)
}

// emptyServiceConfig is the service config emitted when route matching
// found no applicable timeout, or timeouts are disabled.
var emptyServiceConfig = map[string]any{}

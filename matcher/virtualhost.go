package matcher

import "github.com/routewise/xdsresolver/xdsresource"

// FindBestMatchingVirtualHost selects the best-matching virtual host for
// host: the first virtual host containing an exact-match domain wins
// outright; otherwise the wildcard match with the longest pattern wins,
// with suffix wildcards (*X) preferred over prefix wildcards (X*) on a
// length tie. Returns nil if nothing matches.
func FindBestMatchingVirtualHost(host string, vhosts []xdsresource.VirtualHost) *xdsresource.VirtualHost {
	var (
		bestVh  *xdsresource.VirtualHost
		bestLen = -1
		bestKnd domainMatchKind
	)

	for i := range vhosts {
		vh := &vhosts[i]
		for _, domain := range vh.Domains {
			kind, length, matched := classifyDomain(host, domain)
			if !matched {
				continue
			}
			if kind == domainExact {
				// First virtual host with an exact match wins immediately;
				// no vhost earlier in the list could have had one, since we
				// would already have returned for it.
				return vh
			}
			if length > bestLen || (length == bestLen && kind == domainSuffix && bestKnd == domainPrefix) {
				bestVh, bestLen, bestKnd = vh, length, kind
			}
		}
	}
	return bestVh
}

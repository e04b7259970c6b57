package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Relay (MEE node) endpoints.
	RelayLocalURL   = "http://localhost:3000/v3"
	RelayMainnetURL = "https://network.biconomy.io/v1"

	// ExplorerDetailsURL prefixes a supertransaction hash on mainnet.
	ExplorerDetailsURL = "https://meescan.biconomy.io/details/"
)

func DefaultRelayURL(network string) string {
	if network == NetworkLocal {
		return RelayLocalURL
	}
	return RelayMainnetURL
}

// IsAllowedRelayURL accepts https endpoints and plain http only on loopback hosts.
func IsAllowedRelayURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func ExplorerLink(hash string) string {
	return ExplorerDetailsURL + strings.TrimSpace(hash)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

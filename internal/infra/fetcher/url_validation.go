// Package fetcher implements collect.Fetcher over plain HTTP JSON APIs.
package fetcher

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	// ErrInvalidURL is returned for base URLs that cannot be requested.
	ErrInvalidURL = errors.New("invalid source URL")

	// ErrPrivateIP is returned when a base URL resolves to a private address
	// while DenyPrivateIPs is set.
	ErrPrivateIP = errors.New("source URL resolves to a private address")

	// ErrBodyTooLarge is returned when a page exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")
)

// lookupIP is swapped in tests.
var lookupIP = net.LookupIP

// validateURL parses raw and checks its scheme and host. With denyPrivateIPs
// it also resolves the host and rejects loopback, private and link-local
// addresses.
func validateURL(raw string, denyPrivateIPs bool) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse error: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme '%s' not allowed (only http/https)", ErrInvalidURL, u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("%w: empty hostname", ErrInvalidURL)
	}
	if !denyPrivateIPs {
		return u, nil
	}

	ips := []net.IP{net.ParseIP(hostname)}
	if ips[0] == nil {
		ips, err = lookupIP(hostname)
		if err != nil {
			return nil, fmt.Errorf("%w: DNS lookup failed for %s: %v", ErrInvalidURL, hostname, err)
		}
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("%w: hostname '%s' resolves to %s", ErrPrivateIP, hostname, ip)
		}
	}
	return u, nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

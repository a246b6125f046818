package security

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"
)

// resolveTimeout bounds the DNS lookup performed during validation.
// Validation must stay cheap; a resolver that needs longer than this
// will be exercised again by the transfer itself.
const resolveTimeout = 5 * time.Second

// specialBlockedPrefixes are non-public ranges not covered by the
// netip.Addr helpers: documentation ranges and the CGNAT shared space.
var specialBlockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("100.64.0.0/10"),   // CGNAT shared space
	netip.MustParsePrefix("2001:db8::/32"),   // IPv6 documentation
}

// isLoopbackAddr reports whether the address is loopback or unspecified.
// The unspecified addresses (0.0.0.0, ::) reach local services on most
// systems, so they count as localhost for blocking purposes.
func isLoopbackAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsUnspecified()
}

// isPrivateAddr reports whether the address belongs to a private,
// link-local, multicast, or documentation range. Covers RFC 1918 IPv4,
// RFC 4193 IPv6 unique-local (fd00::/8), link-local unicast and
// multicast for both families, and the documentation/TEST-NET ranges.
func isPrivateAddr(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return true
	}
	for _, p := range specialBlockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// isLocalhostName reports whether the hostname names the local machine
// without needing resolution.
func isLocalhostName(host string) bool {
	h := strings.ToLower(host)
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

// hostAddrs returns the addresses a hostname refers to. Literal IPs
// parse directly without I/O; hostnames resolve with a bounded timeout.
// A lookup failure returns nil without error: if the name truly cannot
// resolve, the transfer fails later with a DNS classification, which is
// more accurate than a validation rejection.
func hostAddrs(ctx context.Context, host string) []netip.Addr {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}
	}

	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	ipAddrs, err := net.DefaultResolver.LookupIPAddr(rctx, host)
	if err != nil {
		return nil
	}

	addrs := make([]netip.Addr, 0, len(ipAddrs))
	for _, ia := range ipAddrs {
		if addr, ok := netip.AddrFromSlice(ia.IP); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs
}

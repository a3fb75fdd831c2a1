package httpx

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// peerResolver identifies the caller of a request. X-Forwarded-For is only
// read when the direct peer is a trusted proxy.
type peerResolver struct {
	trusted []netip.Prefix
}

// newPeerResolver parses CIDRs or bare addresses. Invalid entries are logged and skipped.
func newPeerResolver(proxies []string, logger *slog.Logger) peerResolver {
	var res peerResolver
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			res.trusted = append(res.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", "value", raw, "error", err)
			continue
		}
		addr = addr.Unmap()
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res
}

func (p peerResolver) isTrusted(addr netip.Addr) bool {
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// resolve returns the direct peer address, or, behind trusted proxies, the
// right-most forwarded address that is not itself a trusted proxy.
func (p peerResolver) resolve(req *http.Request) string {
	remote := strings.TrimSpace(req.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		if remote == "" {
			return "unknown"
		}
		return remote
	}
	addr = addr.Unmap()
	if !p.isTrusted(addr) {
		return addr.String()
	}
	hops := strings.Split(req.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		hop = hop.Unmap()
		if !p.isTrusted(hop) {
			return hop.String()
		}
		addr = hop
	}
	return addr.String()
}

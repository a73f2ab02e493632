// Package observability implements the admin HTTP surface: status,
// replica listing, and the rolling event log.
package observability

import (
	"net"
	"net/http"
)

// ACL gates HTTP access by IP/CIDR, deny-by-default: only an IP
// contained in at least one configured CIDR is allowed through.
type ACL struct {
	nets []*net.IPNet
}

// NewACL builds an ACL from already-parsed CIDRs (config.AdminConfig's
// resolved allowlist).
func NewACL(cidrs []*net.IPNet) *ACL {
	return &ACL{nets: cidrs}
}

// Middleware returns an http.Handler that checks the remote IP against
// the ACL, replying 403 Forbidden if it isn't covered by any CIDR.
func (a *ACL) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Allowed(r.RemoteAddr) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allowed reports whether the remote address (host:port) is covered by
// the ACL.
func (a *ACL) Allowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// Tenta tratar como IP puro (sem porta)
		host = remoteAddr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, cidr := range a.nets {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

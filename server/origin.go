package server

import (
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may open a connection.
//
// Patterns take one of four forms:
//
//	*                   any origin
//	https://app.io      exact origin (scheme, host and port)
//	localhost           host match on any scheme or port
//	*.netlify.app       the domain and all of its subdomains
type OriginPolicy struct {
	any     bool
	exact   map[string]struct{}
	hosts   map[string]struct{}
	domains []string
}

// NewOriginPolicy builds a policy from patterns. Blank patterns are ignored.
func NewOriginPolicy(patterns []string) *OriginPolicy {
	p := &OriginPolicy{
		exact: make(map[string]struct{}),
		hosts: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		pat := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case pat == "":
		case pat == "*":
			p.any = true
		case strings.Contains(pat, "://"):
			p.exact[strings.TrimSuffix(pat, "/")] = struct{}{}
		case strings.HasPrefix(pat, "*."):
			p.domains = append(p.domains, pat[2:])
		default:
			p.hosts[pat] = struct{}{}
		}
	}
	return p
}

// Allow reports whether origin may connect. Requests without an Origin
// header are not from a browser and are allowed.
func (p *OriginPolicy) Allow(origin string) bool {
	if origin == "" || p == nil || p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if _, ok := p.hosts[host]; ok {
		return true
	}
	for _, d := range p.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

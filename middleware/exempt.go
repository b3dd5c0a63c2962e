package middleware

import (
	"path"
	"strings"
)

// ExemptPaths is the fixed allow-list of paths served without authentication.
type ExemptPaths struct {
	exact    map[string]bool
	prefixes []string
}

// NewExemptPaths builds an allow-list. Entries ending in "/*" match everything
// below that prefix.
func NewExemptPaths(paths ...string) *ExemptPaths {
	e := &ExemptPaths{exact: make(map[string]bool)}
	for _, p := range paths {
		if strings.HasSuffix(p, "/*") {
			e.prefixes = append(e.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		e.exact[p] = true
	}
	return e
}

// DefaultExemptPaths covers health probes, provider config discovery and the API docs
func DefaultExemptPaths() *ExemptPaths {
	return NewExemptPaths(
		"/health",
		"/healthz",
		"/readyz",
		"/api/auth/config",
		"/docs",
		"/docs/*",
		"/redoc",
		"/openapi.json",
	)
}

// Match reports whether the request path is exempt. The path is cleaned first
// so dot segments cannot smuggle a protected path under an exempt prefix.
func (e *ExemptPaths) Match(p string) bool {
	if e == nil || p == "" {
		return false
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	if e.exact[cleaned] {
		return true
	}
	for _, prefix := range e.prefixes {
		if strings.HasPrefix(cleaned, prefix) {
			return true
		}
	}
	return false
}

package auth

import (
	"net/http"
	"strings"
)

// Rule is the access requirement of one route.
type Rule struct {
	Scheme Scheme
	Action Action
}

// Policy maps requests to rules. Paths with no rule pass through.
type Policy struct {
	ExemptPaths    map[string]struct{}
	SignedPrefixes []string
}

// DefaultPolicy exempts health and metrics and expects signatures under
// /ingest/.
func DefaultPolicy() Policy {
	return Policy{
		ExemptPaths:    map[string]struct{}{"/healthz": {}, "/metrics": {}},
		SignedPrefixes: []string{"/ingest/"},
	}
}

// Rule resolves the rule for r.
func (p Policy) Rule(r *http.Request) (Rule, bool) {
	if r == nil {
		return Rule{}, false
	}
	path := r.URL.Path
	if _, ok := p.ExemptPaths[path]; ok {
		return Rule{}, false
	}
	for _, prefix := range p.SignedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return Rule{Scheme: SchemeSignature, Action: ActionIngest}, true
		}
	}
	if !strings.HasPrefix(path, "/api/") {
		return Rule{}, false
	}

	bearer := func(action Action) (Rule, bool) {
		return Rule{Scheme: SchemeBearer, Action: action}, true
	}
	switch {
	case path == "/api/v1/node":
		return bearer(ActionInspectNode)
	case path == "/api/v1/preview":
		return bearer(ActionRead)
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return bearer(ActionRead)
	default:
		return bearer(ActionIngest)
	}
}

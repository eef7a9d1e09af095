// Package router assigns source files to vector index collections.
package router

import (
	"strings"

	"wikirag/internal/config"
	"wikirag/internal/logger"
)

// Route is the destination of a routed file.
type Route struct {
	Collection string
	Category   string
}

// Router applies ordered path-segment rules. The first rule whose segment
// occurs in the slash-normalized path wins, so precedence is exactly the
// configured order. In strict mode a path matched by rules of two different
// collections is not routed at all.
type Router struct {
	rules  []config.RoutingRule
	strict bool
}

// New copies the rules so later config mutation cannot change routing.
func New(rules []config.RoutingRule) *Router {
	cp := make([]config.RoutingRule, len(rules))
	copy(cp, rules)
	return &Router{rules: cp}
}

// FromConfig builds a router honoring routing.strict.
func FromConfig(c config.RoutingConfig) *Router {
	r := New(c.Rules)
	r.strict = c.Strict
	return r
}

// Route returns the destination for filePath, or false when no rule matches
// (or, in strict mode, when the match is ambiguous).
func (r *Router) Route(filePath string) (Route, bool) {
	normalized := strings.ReplaceAll(filePath, `\`, "/")
	var (
		found Route
		ok    bool
	)
	for _, rule := range r.rules {
		if !strings.Contains(normalized, rule.Segment) {
			continue
		}
		if !ok {
			found, ok = Route{Collection: rule.Collection, Category: rule.Category}, true
			if !r.strict {
				return found, true
			}
			continue
		}
		if rule.Collection != found.Collection {
			logger.L().Warn("ambiguous route, ignoring", "file", filePath, "collections", []string{found.Collection, rule.Collection})
			return Route{}, false
		}
	}
	return found, ok
}

// Collections lists the distinct destination collections in rule order.
func (r *Router) Collections() []string {
	seen := make(map[string]struct{}, len(r.rules))
	var out []string
	for _, rule := range r.rules {
		if _, ok := seen[rule.Collection]; ok {
			continue
		}
		seen[rule.Collection] = struct{}{}
		out = append(out, rule.Collection)
	}
	return out
}

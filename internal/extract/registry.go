package extract

import (
	"strings"

	"go.uber.org/zap"

	"topster/internal/logging"
)

// Rule maps server names or embed URL signatures to an extractor. Matching
// is a case-insensitive substring test.
type Rule struct {
	Names     []string
	Hosts     []string
	Extractor Extractor
}

func (r Rule) matchName(name string) bool {
	return containsAny(strings.ToLower(name), r.Names)
}

func (r Rule) matchHost(embedURL string) bool {
	return containsAny(strings.ToLower(embedURL), r.Hosts)
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Registry picks the extractor for a server. Server names are checked
// against every rule before embed URLs are, each pass in rule order.
// Anything unmatched goes to the fallback.
type Registry struct {
	rules    []Rule
	fallback Extractor
	log      *zap.Logger
}

// NewRegistry creates a registry with explicit rules and fallback.
func NewRegistry(fallback Extractor, log *zap.Logger, rules ...Rule) *Registry {
	return &Registry{rules: rules, fallback: fallback, log: logging.OrNop(log)}
}

// Extractors bundles one instance of each backend.
type Extractors struct {
	MegaCloud  *MegaCloud
	VidCloud   *VidCloud
	RapidCloud *RapidCloud
	StreamSB   *StreamSB
}

// DefaultRegistry wires the four backends in dispatch priority order with
// MegaCloud as the fallback.
func DefaultRegistry(e Extractors, log *zap.Logger) *Registry {
	return NewRegistry(e.MegaCloud, log,
		Rule{Names: []string{"megacloud"}, Hosts: []string{"megacloud.tv"}, Extractor: e.MegaCloud},
		Rule{Names: []string{"vidcloud", "upcloud"}, Hosts: []string{"vidcloud", "upcloud"}, Extractor: e.VidCloud},
		Rule{Names: []string{"rapidcloud"}, Hosts: []string{"rapid-cloud.co", "rabbitstream.net"}, Extractor: e.RapidCloud},
		Rule{Names: []string{"streamsb"}, Hosts: []string{"streamsb", "watchsb", "sbplay"}, Extractor: e.StreamSB},
	)
}

// Resolve returns the extractor for a server name and embed URL.
func (r *Registry) Resolve(serverName, embedURL string) Extractor {
	for _, rule := range r.rules {
		if rule.matchName(serverName) {
			return rule.Extractor
		}
	}
	for _, rule := range r.rules {
		if rule.matchHost(embedURL) {
			return rule.Extractor
		}
	}
	r.log.Warn("no extractor matched, using fallback",
		zap.String("server", serverName),
		zap.String("embed_url", embedURL),
		zap.String("fallback", r.fallback.Name()),
	)
	return r.fallback
}

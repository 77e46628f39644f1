package route

import (
	"context"

	"github.com/relaymesh/proxyd/internal/proxycore"
	"github.com/relaymesh/proxyd/internal/proxyerr"
)

// Rule binds a set of exact hosts and suffix patterns to a downstream
// connector. A Rule with a nil Connector ("drop") matches but refuses
// every connection through it. The first rule with IsDefault set (and a
// non-nil Connector) becomes the fallback for everything HostMatcher
// does not match, and for every literal V4/V6 endpoint.
type Rule struct {
	Hosts        []string
	HostSuffixes []string
	IsDefault    bool
	Connector    proxycore.Connector
}

// Connector dispatches TCP connects by target host through whichever
// rule's connector matches, falling back to the default connector.
type Connector struct {
	matcher          *HostMatcher
	connectors       []proxycore.Connector
	defaultConnector proxycore.Connector
}

// NewConnector builds a route Connector from rules, in the order given;
// HostMatcher ties resolve to the earliest rule that matches.
func NewConnector(rules []Rule) *Connector {
	c := &Connector{matcher: NewHostMatcher()}
	for _, rule := range rules {
		c.connectors = append(c.connectors, rule.Connector)
		idx := len(c.connectors) - 1
		for _, h := range rule.Hosts {
			c.matcher.Add(h, idx)
		}
		for _, s := range rule.HostSuffixes {
			c.matcher.AddSuffix(s, idx)
		}
		if rule.IsDefault && c.defaultConnector == nil {
			c.defaultConnector = rule.Connector
		}
	}
	c.matcher.Build()
	return c
}

// ConnectTCP always uses the default connector for literal V4/V6
// endpoints — an explicit, documented limitation carried over from the
// original (see SPEC_FULL.md §9, decision 1) — and dispatches Host
// endpoints through whichever rule's connector HostMatcher selects.
func (c *Connector) ConnectTCP(ctx context.Context, ep proxycore.Endpoint, initialData []byte) (proxycore.Stream, error) {
	connector := c.defaultConnector
	if ep.Kind == proxycore.KindHost {
		if idx, ok := c.matcher.Match(ep.Host); ok {
			connector = c.connectors[idx]
		}
	}
	if connector == nil {
		return nil, proxyerr.New("route.connector", proxyerr.NetworkUnreachable)
	}
	return connector.ConnectTCP(ctx, ep, initialData)
}

// BindUDP is unconditionally unsupported, per the original's stub
// implementation and SPEC_FULL.md §9 decision 4.
func (c *Connector) BindUDP(ctx context.Context, ep proxycore.Endpoint) (proxycore.Datagram, error) {
	return nil, proxyerr.New("route.connector", proxyerr.NotSupported)
}

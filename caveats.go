package proxion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	caveatKindIPAllowlist  = "ip_allowlist"
	caveatKindTimeWindow   = "time_window"
	caveatKindNonceMatches = "nonce_matches"
)

// IPAllowlist constrains requests to a fixed set of source addresses.
type IPAllowlist struct {
	allowed map[string]struct{}
	id      string
}

func NewIPAllowlist(ips ...string) *IPAllowlist {
	allowed := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		allowed[ip] = struct{}{}
	}

	members := maps.Keys(allowed)
	slices.Sort(members)

	return &IPAllowlist{
		allowed: allowed,
		id:      caveatKindIPAllowlist + ":" + strings.Join(members, ","),
	}
}

func (c *IPAllowlist) CaveatID() string { return c.id }

func (c *IPAllowlist) Evaluate(ctx *RequestContext) (bool, error) {
	if ctx == nil || ctx.IP == "" {
		return false, nil
	}

	_, ok := c.allowed[ctx.IP]
	return ok, nil
}

// TimeWindow constrains requests to an inclusive window of seconds
// since the Unix epoch.
type TimeWindow struct {
	NotBefore float64
	NotAfter  float64
}

func NewTimeWindow(notBefore, notAfter float64) *TimeWindow {
	return &TimeWindow{NotBefore: notBefore, NotAfter: notAfter}
}

func (c *TimeWindow) CaveatID() string {
	return caveatKindTimeWindow + ":" + formatEpoch(c.NotBefore) + ":" + formatEpoch(c.NotAfter)
}

func (c *TimeWindow) Evaluate(ctx *RequestContext) (bool, error) {
	if ctx == nil || ctx.Now.IsZero() {
		return false, nil
	}

	ts := float64(ctx.Now.UTC().UnixNano()) / float64(time.Second)
	return c.NotBefore <= ts && ts <= c.NotAfter, nil
}

// formatEpoch renders an epoch-seconds parameter in its shortest
// round-trippable form, so ids are stable for any given parameters.
func formatEpoch(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NonceMatches constrains requests to a single expected device nonce.
type NonceMatches struct {
	Expected string
}

func NewNonceMatches(expected string) *NonceMatches {
	return &NonceMatches{Expected: expected}
}

func (c *NonceMatches) CaveatID() string {
	return caveatKindNonceMatches + ":" + c.Expected
}

func (c *NonceMatches) Evaluate(ctx *RequestContext) (bool, error) {
	if ctx == nil || ctx.DeviceNonce == "" {
		return false, nil
	}
	return ctx.DeviceNonce == c.Expected, nil
}

// ParseCaveat rebuilds a builtin caveat from its id string. The builtin
// ids fully encode their parameters, so a parsed caveat evaluates
// identically to the original and produces the same id. Custom caveat
// ids are not parseable.
func ParseCaveat(id string) (Caveat, error) {
	kind, rest, found := strings.Cut(id, ":")
	if !found {
		return nil, fmt.Errorf("parse caveat: malformed id %q", id)
	}

	switch kind {
	case caveatKindIPAllowlist:
		if rest == "" {
			return NewIPAllowlist(), nil
		}
		return NewIPAllowlist(strings.Split(rest, ",")...), nil

	case caveatKindTimeWindow:
		nbs, nas, found := strings.Cut(rest, ":")
		if !found {
			return nil, fmt.Errorf("parse caveat: malformed time window %q", id)
		}

		nb, err := strconv.ParseFloat(nbs, 64)
		if err != nil {
			return nil, fmt.Errorf("parse caveat: time window not-before: %w", err)
		}

		na, err := strconv.ParseFloat(nas, 64)
		if err != nil {
			return nil, fmt.Errorf("parse caveat: time window not-after: %w", err)
		}

		return NewTimeWindow(nb, na), nil

	case caveatKindNonceMatches:
		return NewNonceMatches(rest), nil

	default:
		return nil, fmt.Errorf("parse caveat: unregistered caveat kind %q", kind)
	}
}

package services

import (
	"strings"

	"github.com/hearthview/auth/domain"
	serrors "github.com/hearthview/auth/errors"
)

// AccessGateOptions configure the gate from operator settings.
type AccessGateOptions struct {
	MaintenanceMode  bool
	AllowlistEnabled bool
	Allowlist        []string
	DefaultTier      domain.AccessTier
	Limits           domain.AccessLimits
}

// AccessGate decides whether an identity may obtain credentials at all. It
// reports tier and soft limits for downstream enforcement but enforces
// nothing beyond the hard denials itself.
type AccessGate struct {
	maintenance bool
	allowlistOn bool
	allowlist   map[string]struct{}
	tier        domain.AccessTier
	limits      domain.AccessLimits
}

func NewAccessGate(opts AccessGateOptions) *AccessGate {
	allowlist := make(map[string]struct{}, len(opts.Allowlist))
	for _, email := range opts.Allowlist {
		allowlist[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}

	tier := opts.DefaultTier
	if tier == "" {
		tier = domain.AccessTierBeta
	}

	return &AccessGate{
		maintenance: opts.MaintenanceMode,
		allowlistOn: opts.AllowlistEnabled,
		allowlist:   allowlist,
		tier:        tier,
		limits:      opts.Limits,
	}
}

// Check evaluates, in order: maintenance, allow-list membership, tier rules.
// The decision is computed fresh on every call and never cached.
func (g *AccessGate) Check(email string) domain.AccessDecision {
	if g.maintenance {
		return domain.AccessDecision{Allowed: false, Reason: serrors.ReasonMaintenance}
	}

	if g.allowlistOn {
		if _, ok := g.allowlist[strings.ToLower(email)]; !ok {
			return domain.AccessDecision{Allowed: false, Reason: serrors.ReasonNotWhitelisted}
		}
	}

	return domain.AccessDecision{
		Allowed: true,
		Tier:    g.tier,
		Limits:  g.limits,
	}
}

package domain

// AccessTier labels the service level a user is admitted at.
type AccessTier string

const (
	AccessTierBeta AccessTier = "beta"
	AccessTierFree AccessTier = "free"
)

// AccessLimits are soft limits reported to clients alongside an access
// decision. This service reports them for downstream enforcement; it does not
// enforce them itself.
type AccessLimits struct {
	MaxAccounts   int `json:"max_accounts"`
	MaxDashboards int `json:"max_dashboards"`
}

// AccessDecision is computed fresh on each identity verification and never
// persisted.
type AccessDecision struct {
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason,omitempty"`
	Tier    AccessTier   `json:"tier,omitempty"`
	Limits  AccessLimits `json:"limits"`
}

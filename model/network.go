package model

import "time"

// Geo is best-effort geolocation for an IP. Every field is optional —
// a failed or rate-limited lookup leaves Geo zero-valued, never an error
// surfaced to the caller (spec §9 Open Question 3).
type Geo struct {
	Country string
	ASN     string
	City    string
}

// PublicIP is the last validated public IP observed for this host.
type PublicIP struct {
	Address     string // empty until a provider has returned a valid address
	Geo         Geo
	FetchedAt   time.Time
	ProviderUsed string
}

// MtuState tracks path-MTU discovery with hysteresis (spec §3).
type MtuState struct {
	CurrentMTU       int
	PathMTUEstimate  int
	Issue            bool
	ConsecutiveIssue int
	ConsecutiveClear int
	everSet          bool
}

// TtlState tracks the last observed TTL and the hop count it implies.
type TtlState struct {
	LastTTL        int
	EstimatedHops  int
}

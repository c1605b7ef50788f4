// Package usage fetches per-credential usage from the remote metering API
// and aggregates the results into organization-wide snapshots.
package usage

import (
	"encoding/json"
	"time"
)

// Result is the outcome of fetching usage for one credential. It is a tagged
// union: exactly one of UsageRecord or ErrorRecord implements it.
type Result interface {
	// ResultID returns the credential id the result belongs to.
	ResultID() string
}

// UsageRecord is the success variant of Result.
type UsageRecord struct {
	ID           string  `json:"id"`
	MaskedSecret string  `json:"maskedSecret"`
	WindowStart  string  `json:"windowStart"`
	WindowEnd    string  `json:"windowEnd"`
	Used         int64   `json:"used"`
	Allowance    int64   `json:"allowance"`
	UsedRatio    float64 `json:"usedRatio"`

	// secret holds the cleartext credential for the aggregator's audit hook.
	// It is unexported so it can never leak through JSON.
	secret string
}

// ResultID implements Result.
func (r UsageRecord) ResultID() string { return r.ID }

// Remaining returns the unconsumed allowance, clamped at zero. It is derived
// on demand and never stored.
func (r UsageRecord) Remaining() int64 {
	if r.Allowance > r.Used {
		return r.Allowance - r.Used
	}
	return 0
}

// MarshalJSON includes the derived remaining value alongside the stored
// fields.
func (r UsageRecord) MarshalJSON() ([]byte, error) {
	type alias UsageRecord
	return json.Marshal(struct {
		alias
		Remaining int64 `json:"remaining"`
	}{alias(r), r.Remaining()})
}

// ErrorRecord is the failure variant of Result.
type ErrorRecord struct {
	ID           string `json:"id"`
	MaskedSecret string `json:"maskedSecret"`
	Error        string `json:"error"`
}

// ResultID implements Result.
func (r ErrorRecord) ResultID() string { return r.ID }

// Totals are organization-wide sums over successful records.
type Totals struct {
	TotalUsed      int64 `json:"totalUsed"`
	TotalAllowance int64 `json:"totalAllowance"`
	TotalRemaining int64 `json:"totalRemaining"`
}

// Snapshot is one immutable aggregate produced by a single refresh cycle.
// Records holds all UsageRecords sorted by descending remaining allowance,
// followed by all ErrorRecords in fetch-completion order.
type Snapshot struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	TotalCredentials int       `json:"totalCredentials"`
	Totals           Totals    `json:"totals"`
	Records          []Result  `json:"records"`
}

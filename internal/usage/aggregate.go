package usage

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// AuditFunc receives the cleartext secrets of credentials that still have
// remaining allowance. It exists for external auditing only and has no effect
// on the snapshot.
type AuditFunc func(secrets []string)

// LogAudit is the default audit hook; it logs how many credentials still have
// allowance without exposing the secrets themselves.
func LogAudit(secrets []string) {
	log.WithField("count", len(secrets)).Debug("Credentials with remaining allowance")
}

// Aggregate combines per-credential fetch results into one snapshot.
// UsageRecords are sorted by descending remaining allowance (stable, so ties
// keep fetch-completion order) and ErrorRecords are appended after them.
// Totals sum over UsageRecords only; errored credentials still count toward
// TotalCredentials.
func Aggregate(results []Result, now time.Time, audit AuditFunc) *Snapshot {
	records := make([]UsageRecord, 0, len(results))
	failures := make([]ErrorRecord, 0)

	for _, r := range results {
		switch rec := r.(type) {
		case UsageRecord:
			records = append(records, rec)
		case ErrorRecord:
			failures = append(failures, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Remaining() > records[j].Remaining()
	})

	var totals Totals
	var active []string
	for _, r := range records {
		totals.TotalUsed += r.Used
		totals.TotalAllowance += r.Allowance
		totals.TotalRemaining += r.Remaining()
		if r.Remaining() > 0 && r.secret != "" {
			active = append(active, r.secret)
		}
	}

	if audit != nil {
		audit(active)
	}

	ordered := make([]Result, 0, len(results))
	for _, r := range records {
		ordered = append(ordered, r)
	}
	for _, r := range failures {
		ordered = append(ordered, r)
	}

	return &Snapshot{
		GeneratedAt:      now,
		TotalCredentials: len(results),
		Totals:           totals,
		Records:          ordered,
	}
}

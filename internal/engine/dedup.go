package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// dedupHistorySize bounds the per-fingerprint recent-history ring
const dedupHistorySize = 32

// DedupFilter suppresses repeat alerts sharing a fingerprint inside a rule's
// time window. History is transient per-process state; callers hold the
// organization partition lock, so no internal locking is needed.
type DedupFilter struct {
	// org id -> fingerprint -> ring of recent arrival times
	history map[uint]map[string]*dedupRing
}

// NewDedupFilter creates an empty filter
func NewDedupFilter() *DedupFilter {
	return &DedupFilter{history: make(map[uint]map[string]*dedupRing)}
}

// Fingerprint computes the alert's dedup fingerprint from the rule's grouping
// dimensions plus a content hash of the error message.
func Fingerprint(alert *database.Alert, rule *database.AlertGroupingRule) string {
	h := sha256.New()
	for _, dim := range rule.GroupBy {
		fmt.Fprintf(h, "%s=%s;", dim, dimensionValue(alert, dim))
	}
	msg := sha256.Sum256([]byte(strings.TrimSpace(alert.ErrorMessage)))
	h.Write(msg[:])
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Admit decides whether the alert is a duplicate. Duplicates are marked
// deduplicated=true; they may still merge into an existing group but never
// spawn a new one or trigger a notification. If the rule has deduplication
// disabled, every alert is accepted.
func (f *DedupFilter) Admit(alert *database.Alert, rule *database.AlertGroupingRule, now time.Time) bool {
	alert.Fingerprint = Fingerprint(alert, rule)

	if !rule.DeduplicationEnabled {
		return true
	}

	window := time.Duration(rule.TimeWindowSeconds) * time.Second
	ring := f.ring(alert.OrganizationID, alert.Fingerprint)
	seen := ring.seenSince(now.Add(-window))
	ring.add(now)

	if seen {
		alert.Deduplicated = true
		return false
	}
	return true
}

// Expire drops fingerprint history older than the given horizon. Called by
// the rate-limit sweep job to keep the maps bounded on quiet fingerprints.
func (f *DedupFilter) Expire(orgID uint, horizon time.Time) {
	rings, ok := f.history[orgID]
	if !ok {
		return
	}
	for fp, ring := range rings {
		if ring.newest().Before(horizon) {
			delete(rings, fp)
		}
	}
}

func (f *DedupFilter) ring(orgID uint, fingerprint string) *dedupRing {
	rings, ok := f.history[orgID]
	if !ok {
		rings = make(map[string]*dedupRing)
		f.history[orgID] = rings
	}
	r, ok := rings[fingerprint]
	if !ok {
		r = &dedupRing{}
		rings[fingerprint] = r
	}
	return r
}

// dedupRing is a fixed-capacity ring of arrival timestamps; the oldest entry
// is overwritten once the ring is full.
type dedupRing struct {
	times [dedupHistorySize]time.Time
	next  int
	size  int
}

func (r *dedupRing) add(t time.Time) {
	r.times[r.next] = t
	r.next = (r.next + 1) % dedupHistorySize
	if r.size < dedupHistorySize {
		r.size++
	}
}

func (r *dedupRing) seenSince(cutoff time.Time) bool {
	for i := 0; i < r.size; i++ {
		if !r.times[i].Before(cutoff) {
			return true
		}
	}
	return false
}

func (r *dedupRing) newest() time.Time {
	if r.size == 0 {
		return time.Time{}
	}
	idx := (r.next - 1 + dedupHistorySize) % dedupHistorySize
	return r.times[idx]
}

// dimensionValue resolves one grouping dimension for an alert
func dimensionValue(alert *database.Alert, dim string) string {
	switch {
	case dim == database.GroupByCheckID:
		return alert.CheckID
	case dim == database.GroupByCheckType:
		return alert.CheckType
	case dim == database.GroupByLocation:
		return alert.Location
	case dim == database.GroupByErrorType:
		return errorType(alert.ErrorMessage)
	case strings.HasPrefix(dim, database.GroupByTagPrefix):
		return alert.TagValue(strings.TrimPrefix(dim, database.GroupByTagPrefix))
	default:
		return ""
	}
}

// errorType extracts a coarse error class from an error message: the first
// colon-delimited segment, lowercased ("connection refused", "timeout", ...).
func errorType(msg string) string {
	msg = strings.ToLower(strings.TrimSpace(msg))
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 64 {
		msg = msg[:64]
	}
	return msg
}

package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"gorm.io/gorm"
)

// Correlator clusters otherwise-independent alerts that likely share a root
// cause. Clustering is heuristic and similarity-driven, unlike grouping which
// is rule-keyed and deterministic; a cluster may span several groups.
type Correlator struct {
	db *gorm.DB
}

// NewCorrelator creates a new correlator
func NewCorrelator(db *gorm.DB) *Correlator {
	return &Correlator{db: db}
}

// Correlate attaches the alert to the best-matching open cluster, or opens a
// new singleton cluster. The best match is the open cluster whose primary
// alert scores highest against the incoming alert, provided the score reaches
// the configured threshold and the cluster's most recent alert is inside the
// time window. Ties prefer the cluster with the most recent last_alert_at.
func (c *Correlator) Correlate(alert *database.Alert, settings *database.CorrelationSettings, now time.Time) (*database.AlertCorrelation, error) {
	if !settings.Enabled {
		return nil, nil
	}

	window := time.Duration(settings.TimeWindowSeconds) * time.Second
	var clusters []database.AlertCorrelation
	err := c.db.Where("organization_id = ? AND status IN ? AND last_alert_at >= ?",
		alert.OrganizationID,
		[]database.CorrelationStatus{database.CorrelationStatusActive, database.CorrelationStatusAcknowledged},
		now.Add(-window),
	).Order("last_alert_at DESC").Find(&clusters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open clusters: %w", err)
	}

	var best *database.AlertCorrelation
	bestScore := 0
	bestReason := ""
	for i := range clusters {
		cluster := &clusters[i]
		var primary database.Alert
		if err := c.db.First(&primary, cluster.PrimaryAlertID).Error; err != nil {
			continue
		}
		score, reason := c.similarity(alert, &primary, cluster, settings, now)
		// Clusters are ordered most-recent-first, so a strict comparison
		// implements the tie-break in favor of the most recent cluster.
		if score >= settings.SimilarityThreshold && score > bestScore {
			best = cluster
			bestScore = score
			bestReason = reason
		}
	}

	if best != nil {
		alert.CorrelationID = &best.ID
		updates := map[string]interface{}{
			"alert_count":   gorm.Expr("alert_count + 1"),
			"last_alert_at": alert.OccurredAt,
		}
		// The reason records why the cluster formed. A singleton carries a
		// placeholder until its second alert arrives; joins after that do
		// not rewrite it.
		if best.AlertCount == 1 {
			updates["reason"] = bestReason
			best.Reason = bestReason
		}
		if err := c.db.Model(best).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to join cluster %s: %w", best.UUID, err)
		}
		best.AlertCount++
		best.LastAlertAt = alert.OccurredAt
		return best, nil
	}

	cluster := &database.AlertCorrelation{
		UUID:           uuid.NewString(),
		OrganizationID: alert.OrganizationID,
		Reason:         database.CorrelationReasonTimeProximity,
		PrimaryAlertID: alert.ID,
		AlertCount:     1,
		Status:         database.CorrelationStatusActive,
		LastAlertAt:    alert.OccurredAt,
	}
	if err := c.db.Create(cluster).Error; err != nil {
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	alert.CorrelationID = &cluster.ID
	return cluster, nil
}

// similarity scores the alert against a cluster's primary alert over every
// enabled method and returns the highest score with its reason.
func (c *Correlator) similarity(alert, primary *database.Alert, cluster *database.AlertCorrelation, settings *database.CorrelationSettings, now time.Time) (int, string) {
	score := 0
	reason := ""

	if settings.MethodSameCheck && alert.CheckID != "" && alert.CheckID == primary.CheckID {
		score, reason = 100, database.CorrelationReasonSameCheck
	}
	if settings.MethodSameLocation && alert.Location != "" && alert.Location == primary.Location {
		if s := 85; s > score {
			score, reason = s, database.CorrelationReasonSameLocation
		}
	}
	if settings.MethodSimilarError {
		if s := TokenSimilarity(alert.ErrorMessage, primary.ErrorMessage); s > score {
			score, reason = s, database.CorrelationReasonSimilarError
		}
	}
	if settings.MethodTimeProximity && settings.TimeWindowSeconds > 0 {
		elapsed := alert.OccurredAt.Sub(cluster.LastAlertAt)
		if elapsed < 0 {
			elapsed = 0
		}
		// Linear decay from 75 at zero elapsed to 0 at the window edge
		s := 75 - int(75*elapsed.Seconds()/float64(settings.TimeWindowSeconds))
		if s > score {
			score, reason = s, database.CorrelationReasonTimeProximity
		}
	}

	return score, reason
}

// Acknowledge moves a cluster active -> acknowledged. Idempotent; resolving
// backward is a conflict.
func (c *Correlator) Acknowledge(orgID, clusterID uint) (*database.AlertCorrelation, error) {
	var cluster database.AlertCorrelation
	if err := c.db.Where("organization_id = ?", orgID).First(&cluster, clusterID).Error; err != nil {
		return nil, ErrNotFound
	}
	if cluster.Status == database.CorrelationStatusResolved {
		return nil, fmt.Errorf("%w: cluster %d already resolved", ErrConflict, clusterID)
	}
	if cluster.Status == database.CorrelationStatusAcknowledged {
		return &cluster, nil
	}
	if err := c.db.Model(&cluster).Update("status", database.CorrelationStatusAcknowledged).Error; err != nil {
		return nil, err
	}
	cluster.Status = database.CorrelationStatusAcknowledged
	return &cluster, nil
}

// Resolve moves a cluster to the terminal resolved state. Idempotent.
// Already-joined alerts are not retroactively excluded.
func (c *Correlator) Resolve(orgID, clusterID uint) (*database.AlertCorrelation, error) {
	var cluster database.AlertCorrelation
	if err := c.db.Where("organization_id = ?", orgID).First(&cluster, clusterID).Error; err != nil {
		return nil, ErrNotFound
	}
	if cluster.Status == database.CorrelationStatusResolved {
		return &cluster, nil
	}
	if err := c.db.Model(&cluster).Update("status", database.CorrelationStatusResolved).Error; err != nil {
		return nil, err
	}
	cluster.Status = database.CorrelationStatusResolved
	return &cluster, nil
}

// TokenSimilarity scores two error messages 0-100 by token-set overlap
// (Jaccard index over normalized word sets). The metric is deterministic and
// monotonic: more shared tokens yields a higher score. Digits are stripped
// during normalization so "timeout after 31s" and "timeout after 28s" compare
// equal.
func TokenSimilarity(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return shared * 100 / union
}

func tokenSet(s string) map[string]bool {
	s = strings.ToLower(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			// strip digits
		default:
			sb.WriteByte(' ')
		}
	}
	set := make(map[string]bool)
	for _, tok := range strings.Fields(sb.String()) {
		if len(tok) > 1 {
			set[tok] = true
		}
	}
	return set
}

package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/netwatch/netwatch/model"
)

// AddAlert is the sole path to alert state (spec §4.1) — the smart-alert
// pipeline is the only caller, and never reaches into repository internals
// to take a lock itself. If fingerprint already names an active alert,
// this bumps last-seen and suppression count instead of creating a new
// entry (spec §4.9 stage 4 dedup); the pipeline is responsible for deciding
// *whether* to call AddAlert at all, this method only records the result.
func (r *Repository) AddAlert(fingerprint uint64, kind model.AlertKind, severity model.AlertSeverity, priority model.AlertPriority, subject, message string, now time.Time) *model.AlertEntity {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()

	if existing, ok := r.activeAlerts[fingerprint]; ok {
		existing.LastSeenAt = now
		existing.SuppressionCount++
		if severityRank(severity) > severityRank(existing.Severity) {
			existing.Severity = severity // severity monotonic within a group (spec §3)
		}
		if priorityRank(priority) > priorityRank(existing.Priority) {
			existing.Priority = priority // lets EscalateAged's re-AddAlert actually raise priority
		}
		cp := *existing
		return &cp
	}

	a := &model.AlertEntity{
		ID:          uuid.NewString(),
		Kind:        kind,
		Severity:    severity,
		Priority:    priority,
		Message:     message,
		Subject:     subject,
		Fingerprint: fingerprint,
		State:       model.AlertPending,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	r.activeAlerts[fingerprint] = a
	cp := *a
	return &cp
}

func severityRank(s model.AlertSeverity) int {
	switch s {
	case model.SeverityCritical:
		return 3
	case model.SeverityWarning:
		return 2
	case model.SeverityInfo:
		return 1
	default:
		return 0
	}
}

func priorityRank(p model.AlertPriority) int {
	switch p {
	case model.PriorityCritical:
		return 3
	case model.PriorityHigh:
		return 2
	case model.PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ActivateAlert transitions a pending alert to active (spec §4.9 state
// machine). No-op if the fingerprint is unknown or already past pending.
func (r *Repository) ActivateAlert(fingerprint uint64) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	if a, ok := r.activeAlerts[fingerprint]; ok && a.State == model.AlertPending {
		a.State = model.AlertActive
	}
}

// NoteConditionFalse increments an alert's condition-false streak and, on
// the third consecutive false tick, recovers it into history (spec §4.9
// stage 6, spec §8 "Recovery"). Returns true if the alert recovered this
// call.
func (r *Repository) NoteConditionFalse(fingerprint uint64, now time.Time) (recovered bool) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	a, ok := r.activeAlerts[fingerprint]
	if !ok {
		return false
	}
	a.ConditionFalseStreak++
	if a.ConditionFalseStreak >= 3 {
		a.State = model.AlertRecovered
		a.LastSeenAt = now
		r.archive(fingerprint, a)
		return true
	}
	return false
}

// NoteConditionTrue resets an alert's condition-false streak — the
// condition held again before it reached the recovery threshold.
func (r *Repository) NoteConditionTrue(fingerprint uint64) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	if a, ok := r.activeAlerts[fingerprint]; ok {
		a.ConditionFalseStreak = 0
	}
}

// archive moves an alert into the bounded history and drops it from the
// active set. Caller must hold alertMu.
func (r *Repository) archive(fingerprint uint64, a *model.AlertEntity) {
	archived := *a
	archived.State = model.AlertArchived
	r.alertHistory.Push(archived)
	delete(r.activeAlerts, fingerprint)
}

// CleanOldAlerts archives any active alert whose LastSeenAt is older than
// maxAge — a backstop against alerts that never recover
// through NoteConditionFalse (e.g. their owning probe stopped running).
func (r *Repository) CleanOldAlerts(now time.Time, maxAge time.Duration) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	for fp, a := range r.activeAlerts {
		if now.Sub(a.LastSeenAt) > maxAge {
			a.State = model.AlertArchived
			r.archive(fp, a)
		}
	}
}

// ActiveAlert returns a copy of the active alert for fingerprint, if any.
func (r *Repository) ActiveAlert(fingerprint uint64) (model.AlertEntity, bool) {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	a, ok := r.activeAlerts[fingerprint]
	if !ok {
		return model.AlertEntity{}, false
	}
	return *a, true
}

// ActiveAlertFingerprints returns every currently-active alert's
// fingerprint, for the pipeline's recovery-condition sweep.
func (r *Repository) ActiveAlertFingerprints() []uint64 {
	r.alertMu.Lock()
	defer r.alertMu.Unlock()
	out := make([]uint64, 0, len(r.activeAlerts))
	for fp := range r.activeAlerts {
		out = append(out, fp)
	}
	return out
}

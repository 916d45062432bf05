package okr

import (
	"log/slog"
	"sync"

	"engagehub/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NextStatus returns the status a key result should transition to given its
// progress, and whether a transition is required. Exactly three mismatches
// are corrected:
//
//	progress == 100 and status != completed   -> completed
//	progress > 0   and status == not_started  -> in_progress
//	progress < 100 and status == completed    -> in_progress (not_started if 0)
//
// Every other (progress, status) combination is left alone, so a status set
// intentionally by a user survives reconciliation.
func NextStatus(progress float64, status string) (string, bool) {
	if progress == 100 && status != schema.Completed {
		return schema.Completed, true
	}
	if progress > 0 && progress < 100 && status == schema.NotStarted {
		return schema.InProgress, true
	}
	if progress < 100 && status == schema.Completed {
		if progress == 0 {
			return schema.NotStarted, true
		}
		return schema.InProgress, true
	}
	return status, false
}

// StatusReconciler applies NextStatus to key results after confirmed progress
// writes. A per key result in-flight flag prevents re-entrant triggering
// while a status mutation is pending.
type StatusReconciler struct {
	db *gorm.DB

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

func NewStatusReconciler(db *gorm.DB) *StatusReconciler {
	return &StatusReconciler{db: db, inFlight: make(map[uuid.UUID]struct{})}
}

func (s *StatusReconciler) begin(keyResultId uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.inFlight[keyResultId]; pending {
		return false
	}
	s.inFlight[keyResultId] = struct{}{}
	return true
}

func (s *StatusReconciler) end(keyResultId uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, keyResultId)
}

// Reconcile runs one reconciliation pass for the key result. It returns true
// if a status mutation was issued. Invoking it again with unchanged inputs is
// a no-op. The update is conditioned on the status that was just read, so a
// concurrent manual edit turns the correction into a no-op instead of being
// overwritten.
func (s *StatusReconciler) Reconcile(keyResultId uuid.UUID) (bool, error) {
	if !s.begin(keyResultId) {
		return false, nil
	}
	defer s.end(keyResultId)

	keyResult, err := schema.GetKeyResult(keyResultId, s.db)
	if err != nil {
		return false, err
	}

	next, changed := NextStatus(keyResult.Progress, keyResult.Status)
	if !changed {
		return false, nil
	}

	result := s.db.Model(&schema.KeyResult{}).
		Where("id = ? AND status = ?", keyResult.Id, keyResult.Status).
		Update("status", next)
	if result.Error != nil {
		slog.Error("sql error reconciling key result status", "key_result_id", keyResultId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		// another writer changed the status first
		return false, nil
	}

	slog.Info("auto status transition applied", "key_result_id", keyResultId, "from", keyResult.Status, "to", next)
	return true, nil
}

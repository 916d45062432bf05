package okr

import (
	"testing"

	"engagehub/portal/schema"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		status   string
		next     string
		changed  bool
	}{
		{"complete marks completed", 100, schema.InProgress, schema.Completed, true},
		{"complete from not started", 100, schema.NotStarted, schema.Completed, true},
		{"already completed no-op", 100, schema.Completed, schema.Completed, false},
		{"starts in progress", 40, schema.NotStarted, schema.InProgress, true},
		{"completed regresses to in progress", 60, schema.Completed, schema.InProgress, true},
		{"completed regresses to not started", 0, schema.Completed, schema.NotStarted, true},
		{"manual status survives", 40, schema.AtRisk, schema.AtRisk, false},
		{"zero progress stays not started", 0, schema.NotStarted, schema.NotStarted, false},
		{"in progress stays", 40, schema.InProgress, schema.InProgress, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, changed := NextStatus(tt.progress, tt.status)
			if next != tt.next || changed != tt.changed {
				t.Fatalf("NextStatus(%v, %v) = (%v, %v), expected (%v, %v)", tt.progress, tt.status, next, changed, tt.next, tt.changed)
			}
		})
	}
}

func TestReconcileAppliesTransition(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)
	kr := newTestKeyResult(t, db, objective, 100, schema.InProgress)

	reconciler := NewStatusReconciler(db)

	changed, err := reconciler.Reconcile(kr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected a status transition")
	}

	updated, err := schema.GetKeyResult(kr.Id, db)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != schema.Completed {
		t.Fatalf("expected status completed, got %v", updated.Status)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)
	kr := newTestKeyResult(t, db, objective, 100, schema.InProgress)

	reconciler := NewStatusReconciler(db)

	if _, err := reconciler.Reconcile(kr.Id); err != nil {
		t.Fatal(err)
	}

	changed, err := reconciler.Reconcile(kr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("second reconciliation with unchanged inputs should be a no-op")
	}
}

func TestReconcileLeavesManualStatus(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)
	kr := newTestKeyResult(t, db, objective, 40, schema.AtRisk)

	reconciler := NewStatusReconciler(db)

	changed, err := reconciler.Reconcile(kr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("at_risk with partial progress should not be touched")
	}

	updated, err := schema.GetKeyResult(kr.Id, db)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != schema.AtRisk {
		t.Fatalf("expected status at_risk, got %v", updated.Status)
	}
}

func TestReconcileRegression(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)

	// a completed boolean key result flipped back off drops to not_started
	kr := newTestKeyResult(t, db, objective, 0, schema.Completed)

	reconciler := NewStatusReconciler(db)

	changed, err := reconciler.Reconcile(kr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected a status transition")
	}

	updated, err := schema.GetKeyResult(kr.Id, db)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != schema.NotStarted {
		t.Fatalf("expected status not_started, got %v", updated.Status)
	}
}

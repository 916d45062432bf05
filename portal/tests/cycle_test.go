package tests

import (
	"errors"
	"fmt"
	"testing"
)

func TestCycleLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("cycleuser")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.createCycle("Q1", quarterStart(), quarterEnd()); !errors.Is(err, ErrForbidden) {
		t.Fatal("only admins can create cycles")
	}

	q1, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}
	q2, err := admin.createCycle("Q2", quarterEnd(), quarterEnd().AddDate(0, 3, 0))
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.activateCycle(q1); err != nil {
		t.Fatal(err)
	}

	// activating another cycle completes the currently active one
	if err := admin.activateCycle(q2); err != nil {
		t.Fatal(err)
	}

	cycles, err := admin.listCycles()
	if err != nil {
		t.Fatal(err)
	}

	statuses := map[string]string{}
	for _, c := range cycles {
		statuses[c["Id"].(string)] = c["Status"].(string)
	}
	if statuses[q1] != "completed" {
		t.Fatalf("expected cycle to be completed, got %v", statuses[q1])
	}
	if statuses[q2] != "active" {
		t.Fatalf("expected cycle to be active, got %v", statuses[q2])
	}
}

func TestCycleInvalidDates(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createCycle("backwards", quarterEnd(), quarterStart()); err == nil {
		t.Fatal("end date before start date should be rejected")
	}
}

func TestCycleDeleteWithObjectives(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createObjective(map[string]interface{}{
		"title": "anchor", "cycle_id": cycleId,
	}); err != nil {
		t.Fatal(err)
	}

	if err := admin.Delete(fmt.Sprintf("/cycle/%v", cycleId)).Do(nil); err == nil {
		t.Fatal("cycles with objectives cannot be deleted")
	}

	emptyId, err := admin.createCycle("empty", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.Delete(fmt.Sprintf("/cycle/%v", emptyId)).Do(nil); err != nil {
		t.Fatal(err)
	}
}

func TestArchivedCycleCannotActivate(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("old", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/cycle/%v/archive", cycleId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := admin.activateCycle(cycleId); err == nil {
		t.Fatal("archived cycles cannot be activated")
	}
}

package tests

import (
	"errors"
	"testing"

	"engagehub/portal/services"
)

func TestObjectiveVisibilityPermissions(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	employee, err := env.newUser("emp1")
	if err != nil {
		t.Fatal(err)
	}

	// no roles are granted org objective creation until configured
	_, err = employee.createObjective(map[string]interface{}{
		"title": "too ambitious", "cycle_id": cycleId, "visibility": "organization",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// private objectives are always allowed
	if _, err := employee.createObjective(map[string]interface{}{
		"title": "personal goal", "cycle_id": cycleId,
	}); err != nil {
		t.Fatal(err)
	}

	err = admin.updateRoleSettings(services.RoleSettingsInfo{
		CanCreateOrgObjectives:  []string{"executive"},
		CanCreateTeamObjectives: []string{"manager"},
	})
	if err != nil {
		t.Fatal(err)
	}

	manager, err := env.newUserWithRole("mgr1", "manager")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := manager.createObjective(map[string]interface{}{
		"title": "team goal", "cycle_id": cycleId, "visibility": "team",
	}); err != nil {
		t.Fatal(err)
	}

	_, err = manager.createObjective(map[string]interface{}{
		"title": "org goal", "cycle_id": cycleId, "visibility": "organization",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestObjectiveListVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	owner, err := env.newUser("owner1")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newUser("other1")
	if err != nil {
		t.Fatal(err)
	}

	privateId, err := owner.createObjective(map[string]interface{}{
		"title": "private plan", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	objectives, err := other.listObjectives()
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range objectives {
		if o.Id.String() == privateId {
			t.Fatal("foreign private objective should not be listed")
		}
	}

	if _, err := other.getObjective(privateId); err == nil {
		t.Fatal("foreign private objective should not be readable")
	}

	objectives, err = admin.listObjectives()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, o := range objectives {
		if o.Id.String() == privateId {
			found = true
		}
	}
	if !found {
		t.Fatal("admins see all objectives")
	}
}

func TestKeyResultProgressLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("krowner")
	if err != nil {
		t.Fatal(err)
	}

	objectiveId, err := user.createObjective(map[string]interface{}{
		"title": "ship it", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	krId, err := user.createKeyResult(map[string]interface{}{
		"objective_id": objectiveId,
		"title":        "close tickets",
		"start_value":  0,
		"target_value": 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := user.recordProgress(krId, map[string]interface{}{"value": 4})
	if err != nil {
		t.Fatal(err)
	}
	if res["progress"].(float64) != 40 {
		t.Fatalf("expected progress 40, got %v", res["progress"])
	}
	if res["status"] != "in_progress" {
		t.Fatalf("expected status in_progress, got %v", res["status"])
	}

	res, err = user.recordProgress(krId, map[string]interface{}{"value": 10})
	if err != nil {
		t.Fatal(err)
	}
	if res["progress"].(float64) != 100 {
		t.Fatalf("expected progress 100, got %v", res["progress"])
	}
	if res["status"] != "completed" {
		t.Fatalf("expected status completed, got %v", res["status"])
	}

	recalc, err := user.recalculateObjective(objectiveId)
	if err != nil {
		t.Fatal(err)
	}
	if recalc["progress"].(float64) != 100 {
		t.Fatalf("expected objective progress 100, got %v", recalc["progress"])
	}

	// other users cannot write progress on someone else's key result
	other, err := env.newUser("intruder")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.recordProgress(krId, map[string]interface{}{"value": 1}); err == nil {
		t.Fatal("foreign users should not record progress")
	}
}

func TestBooleanKeyResult(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("boolowner")
	if err != nil {
		t.Fatal(err)
	}

	objectiveId, err := user.createObjective(map[string]interface{}{
		"title": "launch", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	krId, err := user.createKeyResult(map[string]interface{}{
		"objective_id":     objectiveId,
		"title":            "site is live",
		"measurement_type": "boolean",
	})
	if err != nil {
		t.Fatal(err)
	}

	// progress comes from the done flag alone, so a fresh key result is at 0
	var kr map[string]interface{}
	if err := user.Get("/keyresult/" + krId).Do(&kr); err != nil {
		t.Fatal(err)
	}
	if kr["Progress"].(float64) != 0 {
		t.Fatalf("fresh boolean key result should start at progress 0, got %v", kr["Progress"])
	}
	if kr["Status"] != "not_started" {
		t.Fatalf("fresh boolean key result should be not_started, got %v", kr["Status"])
	}

	if _, err := user.recordProgress(krId, map[string]interface{}{"value": 5}); err == nil {
		t.Fatal("boolean key results require done, not value")
	}

	if err := user.Post("/keyresult/" + krId + "/update").
		Json(map[string]interface{}{"target_value": 5}).Do(nil); err == nil {
		t.Fatal("boolean key results have no target value")
	}

	res, err := user.recordProgress(krId, map[string]interface{}{"done": true})
	if err != nil {
		t.Fatal(err)
	}
	if res["progress"].(float64) != 100 || res["status"] != "completed" {
		t.Fatalf("expected completed at 100, got %v %v", res["progress"], res["status"])
	}
}

func TestObjectiveHierarchy(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}
	otherCycleId, err := admin.createCycle("Q2", quarterEnd(), quarterEnd().AddDate(0, 3, 0))
	if err != nil {
		t.Fatal(err)
	}

	rootId, err := admin.createObjective(map[string]interface{}{
		"title": "root", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}
	midId, err := admin.createObjective(map[string]interface{}{
		"title": "mid", "cycle_id": cycleId, "parent_objective_id": rootId,
	})
	if err != nil {
		t.Fatal(err)
	}
	leafId, err := admin.createObjective(map[string]interface{}{
		"title": "leaf", "cycle_id": cycleId, "parent_objective_id": midId,
	})
	if err != nil {
		t.Fatal(err)
	}

	path, err := admin.rootPath(leafId)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 || path[0] != rootId || path[1] != midId || path[2] != leafId {
		t.Fatalf("wrong root path %v", path)
	}

	// reparenting the root under its own descendant is rejected
	if err := admin.setObjectiveParent(rootId, leafId); err == nil {
		t.Fatal("parent loops should be rejected")
	}

	// parents must live in the same cycle
	foreignId, err := admin.createObjective(map[string]interface{}{
		"title": "next quarter", "cycle_id": otherCycleId,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.setObjectiveParent(foreignId, rootId); err == nil {
		t.Fatal("cross cycle parents should be rejected")
	}
}

func TestPrivateObjectiveScopedReads(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	owner, err := env.newUser("scopedowner")
	if err != nil {
		t.Fatal(err)
	}

	objectiveId, err := owner.createObjective(map[string]interface{}{
		"title": "secret plan", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}
	krId, err := owner.createKeyResult(map[string]interface{}{
		"objective_id": objectiveId,
		"title":        "hidden metric",
		"target_value": 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	stranger, err := env.newUser("stranger1")
	if err != nil {
		t.Fatal(err)
	}

	if err := stranger.Get("/keyresult/" + krId).Do(nil); err == nil {
		t.Fatal("strangers should not read key results of a private objective")
	}
	if _, err := stranger.recalculateObjective(objectiveId); err == nil {
		t.Fatal("strangers should not recalculate a private objective")
	}
	if _, err := stranger.rootPath(objectiveId); err == nil {
		t.Fatal("strangers should not resolve the root path of a private objective")
	}

	// the owner still passes all three
	if err := owner.Get("/keyresult/" + krId).Do(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := owner.recalculateObjective(objectiveId); err != nil {
		t.Fatal(err)
	}
	if _, err := owner.rootPath(objectiveId); err != nil {
		t.Fatal(err)
	}
}

func TestObjectiveAlignments(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	sourceId, err := admin.createObjective(map[string]interface{}{
		"title": "source", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}
	targetId, err := admin.createObjective(map[string]interface{}{
		"title": "target", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	var res map[string]string
	err = admin.Post("/objective/"+sourceId+"/align").
		Json(map[string]interface{}{"aligned_objective_id": targetId}).Do(&res)
	if err != nil {
		t.Fatal(err)
	}
	if res["alignment_id"] == "" {
		t.Fatal("expected alignment id")
	}

	// duplicates are rejected
	err = admin.Post("/objective/"+sourceId+"/align").
		Json(map[string]interface{}{"aligned_objective_id": targetId}).Do(nil)
	if err == nil {
		t.Fatal("duplicate alignment should be rejected")
	}

	view, err := admin.getObjective(sourceId)
	if err != nil {
		t.Fatal(err)
	}
	alignments, ok := view["alignments"].([]interface{})
	if !ok || len(alignments) != 1 {
		t.Fatalf("expected one alignment in view, got %v", view["alignments"])
	}

	err = admin.Delete("/objective/" + sourceId + "/align/" + res["alignment_id"]).Do(nil)
	if err != nil {
		t.Fatal(err)
	}
}

func TestObjectiveExport(t *testing.T) {
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
		"title": "exported", "cycle_id": cycleId,
	}); err != nil {
		t.Fatal(err)
	}

	var res map[string]string
	if err := admin.Post("/objective/export/" + cycleId).Do(&res); err != nil {
		t.Fatal(err)
	}
	if res["path"] == "" {
		t.Fatal("expected export path")
	}

	exists, err := env.storage.Exists(res["path"])
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("export file should exist in storage")
	}
}

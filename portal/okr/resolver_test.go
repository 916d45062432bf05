package okr

import (
	"errors"
	"testing"

	"engagehub/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestResolveComposite(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)

	parent := newTestObjective(t, db, owner, cycle, nil)
	child1 := newTestObjective(t, db, owner, cycle, &parent.Id)
	child2 := newTestObjective(t, db, owner, cycle, &parent.Id)
	other := newTestObjective(t, db, owner, cycle, nil)

	alignment := schema.ObjectiveAlignment{
		Id:                 uuid.New(),
		SourceObjectiveId:  parent.Id,
		AlignedObjectiveId: other.Id,
		AlignmentType:      schema.AlignmentParentChild,
		Weight:             1,
		CreatedBy:          owner.Id,
	}
	if err := db.Create(&alignment).Error; err != nil {
		t.Fatal(err)
	}

	resolver := NewResolver(db, NewCache())

	view, err := resolver.Resolve(parent.Id)
	if err != nil {
		t.Fatal(err)
	}

	if view.Objective.Id != parent.Id {
		t.Fatal("wrong objective resolved")
	}
	if len(view.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(view.Children))
	}
	childIds := map[uuid.UUID]bool{view.Children[0].Id: true, view.Children[1].Id: true}
	if !childIds[child1.Id] || !childIds[child2.Id] {
		t.Fatal("wrong children resolved")
	}
	if len(view.Alignments) != 1 || view.Alignments[0].AlignedObjectiveId != other.Id {
		t.Fatal("wrong alignments resolved")
	}
	if view.Alignments[0].Title != other.Title {
		t.Fatal("alignment should carry the aligned objective's title")
	}
}

func TestResolveCacheHit(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)

	resolver := NewResolver(db, NewCache())

	first, err := resolver.Resolve(objective.Id)
	if err != nil {
		t.Fatal(err)
	}

	// a write after the first resolution is not visible through the cache
	if err := db.Model(&schema.Objective{Id: objective.Id}).Update("title", "renamed").Error; err != nil {
		t.Fatal(err)
	}

	second, err := resolver.Resolve(objective.Id)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Fatal("second resolution should return the cached view")
	}
	if second.Objective.Title != first.Objective.Title {
		t.Fatal("cached view should be unchanged")
	}
}

func TestResolveCacheInvalidate(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)

	cache := NewCache()
	resolver := NewResolver(db, cache)

	if _, err := resolver.Resolve(objective.Id); err != nil {
		t.Fatal(err)
	}

	if err := db.Model(&schema.Objective{Id: objective.Id}).Update("title", "renamed").Error; err != nil {
		t.Fatal(err)
	}
	cache.Invalidate(objective.Id)

	view, err := resolver.Resolve(objective.Id)
	if err != nil {
		t.Fatal(err)
	}
	if view.Objective.Title != "renamed" {
		t.Fatal("invalidated entry should be re-fetched")
	}
}

func TestResolveAlignmentToMissingObjective(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)

	alignment := schema.ObjectiveAlignment{
		Id:                 uuid.New(),
		SourceObjectiveId:  objective.Id,
		AlignedObjectiveId: uuid.New(),
		AlignmentType:      schema.AlignmentParentChild,
		Weight:             1,
		CreatedBy:          owner.Id,
	}
	if err := db.Create(&alignment).Error; err != nil {
		t.Fatal(err)
	}

	resolver := NewResolver(db, NewCache())

	view, err := resolver.Resolve(objective.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Alignments) != 1 {
		t.Fatalf("expected 1 alignment, got %d", len(view.Alignments))
	}
	if view.Alignments[0].Title != "Unknown" || view.Alignments[0].Progress != 0 {
		t.Fatal("missing aligned objective should fall back to a placeholder")
	}
}

func TestRootPath(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)

	root := newTestObjective(t, db, owner, cycle, nil)
	mid := newTestObjective(t, db, owner, cycle, &root.Id)
	leaf := newTestObjective(t, db, owner, cycle, &mid.Id)

	resolver := NewResolver(db, NewCache())

	path, err := resolver.RootPath(leaf.Id)
	if err != nil {
		t.Fatal(err)
	}

	expected := []uuid.UUID{root.Id, mid.Id, leaf.Id}
	if len(path) != len(expected) {
		t.Fatalf("expected path of length %d, got %d", len(expected), len(path))
	}
	for i := range expected {
		if path[i] != expected[i] {
			t.Fatalf("path[%d] = %v, expected %v", i, path[i], expected[i])
		}
	}
}

func TestRootPathFetchesEachAncestorOnce(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)

	root := newTestObjective(t, db, owner, cycle, nil)
	mid := newTestObjective(t, db, owner, cycle, &root.Id)
	leaf := newTestObjective(t, db, owner, cycle, &mid.Id)

	var queries int
	err := db.Callback().Query().After("gorm:query").Register("test_query_counter", func(*gorm.DB) { queries++ })
	if err != nil {
		t.Fatal(err)
	}

	// the per-node cost is what one cold resolution takes
	queries = 0
	single := NewResolver(db, NewCache())
	if _, err := single.Resolve(root.Id); err != nil {
		t.Fatal(err)
	}
	perNode := queries

	queries = 0
	resolver := NewResolver(db, NewCache())
	if _, err := resolver.RootPath(leaf.Id); err != nil {
		t.Fatal(err)
	}
	if queries > 3*perNode {
		t.Fatalf("walking 3 objectives issued %d queries, expected at most %d", queries, 3*perNode)
	}

	// a second walk over the same resolver is served entirely from the cache
	queries = 0
	if _, err := resolver.RootPath(leaf.Id); err != nil {
		t.Fatal(err)
	}
	if queries != 0 {
		t.Fatalf("cached walk issued %d queries, expected 0", queries)
	}
}

func TestRootPathCycle(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)

	a := newTestObjective(t, db, owner, cycle, nil)
	b := newTestObjective(t, db, owner, cycle, &a.Id)

	// corrupt the chain into a loop
	if err := db.Model(&schema.Objective{Id: a.Id}).Update("parent_objective_id", b.Id).Error; err != nil {
		t.Fatal(err)
	}

	resolver := NewResolver(db, NewCache())

	_, err := resolver.RootPath(a.Id)
	if !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("expected hierarchy cycle error, got %v", err)
	}
}

func TestCheckParentCycle(t *testing.T) {
	db := newTestDb(t)
	owner := newTestUser(t, db, "owner", "employee")
	cycle := newTestCycle(t, db)

	root := newTestObjective(t, db, owner, cycle, nil)
	mid := newTestObjective(t, db, owner, cycle, &root.Id)
	leaf := newTestObjective(t, db, owner, cycle, &mid.Id)
	unrelated := newTestObjective(t, db, owner, cycle, nil)

	if err := CheckParentCycle(db, root.Id, leaf.Id); !errors.Is(err, ErrHierarchyCycle) {
		t.Fatalf("parenting the root under its descendant should be rejected, got %v", err)
	}

	if err := CheckParentCycle(db, unrelated.Id, leaf.Id); err != nil {
		t.Fatalf("unrelated parent assignment should be allowed, got %v", err)
	}
}

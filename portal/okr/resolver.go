package okr

import (
	"errors"
	"log/slog"

	"engagehub/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxHierarchyDepth bounds upward walks over the parent chain. Anything
// deeper is treated as a cycle in bad data.
const MaxHierarchyDepth = 32

var ErrHierarchyCycle = errors.New("objective hierarchy contains a cycle")

// AlignmentView is an outbound alignment annotated with live fields from the
// aligned objective. If the aligned objective row has been deleted the
// annotation falls back to a placeholder rather than failing the resolution.
type AlignmentView struct {
	Id                 uuid.UUID `json:"id"`
	AlignedObjectiveId uuid.UUID `json:"aligned_objective_id"`
	AlignmentType      string    `json:"alignment_type"`
	Weight             float64   `json:"weight"`

	Title      string  `json:"title"`
	Progress   float64 `json:"progress"`
	Status     string  `json:"status"`
	Visibility string  `json:"visibility"`
}

// ObjectiveView is an objective with its direct children and outbound
// alignments.
type ObjectiveView struct {
	Objective  schema.Objective   `json:"objective"`
	Children   []schema.Objective `json:"children"`
	Alignments []AlignmentView    `json:"alignments"`
}

// Cache holds resolved objectives for the lifetime of one request. It is
// passed into the resolver explicitly so the caller controls lifetime and
// invalidation.
type Cache struct {
	entries map[uuid.UUID]*ObjectiveView
}

func NewCache() *Cache {
	return &Cache{entries: make(map[uuid.UUID]*ObjectiveView)}
}

func (c *Cache) get(id uuid.UUID) (*ObjectiveView, bool) {
	view, ok := c.entries[id]
	return view, ok
}

func (c *Cache) put(id uuid.UUID, view *ObjectiveView) {
	c.entries[id] = view
}

// Invalidate drops a cached objective, e.g. after a recalculation.
func (c *Cache) Invalidate(id uuid.UUID) {
	delete(c.entries, id)
}

type Resolver struct {
	db    *gorm.DB
	cache *Cache
}

func NewResolver(db *gorm.DB, cache *Cache) *Resolver {
	return &Resolver{db: db, cache: cache}
}

// Resolve returns the objective with its children and annotated alignments.
// Cache hits return synchronously with no db access. Any lookup error aborts
// the whole resolution; partial composites are never returned.
func (r *Resolver) Resolve(objectiveId uuid.UUID) (*ObjectiveView, error) {
	if view, ok := r.cache.get(objectiveId); ok {
		return view, nil
	}

	objective, err := schema.GetObjective(objectiveId, r.db, true, false)
	if err != nil {
		return nil, err
	}

	var children []schema.Objective
	result := r.db.Find(&children, "parent_objective_id = ?", objectiveId)
	if result.Error != nil {
		slog.Error("sql error loading child objectives", "objective_id", objectiveId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	var alignments []schema.ObjectiveAlignment
	result = r.db.Preload("AlignedObjective").Find(&alignments, "source_objective_id = ?", objectiveId)
	if result.Error != nil {
		slog.Error("sql error loading alignments", "objective_id", objectiveId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	views := make([]AlignmentView, 0, len(alignments))
	for _, alignment := range alignments {
		view := AlignmentView{
			Id:                 alignment.Id,
			AlignedObjectiveId: alignment.AlignedObjectiveId,
			AlignmentType:      alignment.AlignmentType,
			Weight:             alignment.Weight,
		}
		if alignment.AlignedObjective != nil {
			view.Title = alignment.AlignedObjective.Title
			view.Progress = alignment.AlignedObjective.Progress
			view.Status = alignment.AlignedObjective.Status
			view.Visibility = alignment.AlignedObjective.Visibility
		} else {
			slog.Warn("alignment references missing objective", "alignment_id", alignment.Id, "aligned_objective_id", alignment.AlignedObjectiveId)
			view.Title = "Unknown"
			view.Progress = 0
		}
		views = append(views, view)
	}

	resolved := &ObjectiveView{Objective: objective, Children: children, Alignments: views}
	r.cache.put(objectiveId, resolved)
	return resolved, nil
}

// RootPath walks the parent chain upward and returns the root-to-leaf path of
// objective identifiers. The cache is consulted before every remote fetch. A
// fetch error stops the walk and returns the path accumulated so far along
// with the error; callers that want the partial path can still use it.
// Exceeding MaxHierarchyDepth or revisiting an objective reports a cycle.
func (r *Resolver) RootPath(objectiveId uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	path := []uuid.UUID{}

	current := objectiveId
	for depth := 0; depth < MaxHierarchyDepth; depth++ {
		if _, visited := seen[current]; visited {
			return reverse(path), ErrHierarchyCycle
		}
		seen[current] = struct{}{}

		view, err := r.Resolve(current)
		if err != nil {
			slog.Warn("root path walk stopped early", "objective_id", current, "error", err)
			return reverse(path), err
		}

		path = append(path, current)
		if view.Objective.ParentObjectiveId == nil {
			return reverse(path), nil
		}
		current = *view.Objective.ParentObjectiveId
	}

	return reverse(path), ErrHierarchyCycle
}

func reverse(path []uuid.UUID) []uuid.UUID {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// CheckParentCycle rejects a parent assignment that would make child an
// ancestor of itself. Used at write time so cycles never enter the table.
func CheckParentCycle(db *gorm.DB, childId, parentId uuid.UUID) error {
	current := parentId
	for depth := 0; depth < MaxHierarchyDepth; depth++ {
		if current == childId {
			return ErrHierarchyCycle
		}

		objective, err := schema.GetObjective(current, db, false, false)
		if err != nil {
			return err
		}
		if objective.ParentObjectiveId == nil {
			return nil
		}
		current = *objective.ParentObjectiveId
	}

	return ErrHierarchyCycle
}

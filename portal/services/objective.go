package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/okr"
	"engagehub/portal/schema"
	"engagehub/portal/storage"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ObjectiveService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	storage  storage.Storage
}

func (s *ObjectiveService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.Create)
	r.Get("/list", s.List)

	r.With(checkSufficientStorage(s.storage)).Post("/export/{cycle_id}", s.Export)

	r.Route("/{objective_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Post("/update", s.Update)
		r.Delete("/", s.Delete)
		r.Post("/recalculate", s.Recalculate)
		r.Get("/root-path", s.RootPath)

		r.Post("/parent/{parent_id}", s.SetParent)
		r.Delete("/parent", s.ClearParent)

		r.Post("/align", s.CreateAlignment)
		r.Delete("/align/{alignment_id}", s.DeleteAlignment)
	})

	return r
}

type createObjectiveRequest struct {
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	CycleId           uuid.UUID  `json:"cycle_id"`
	Visibility        string     `json:"visibility"`
	CalcMethod        string     `json:"calc_method"`
	ParentObjectiveId *uuid.UUID `json:"parent_objective_id,omitempty"`
	UnitId            *uuid.UUID `json:"unit_id,omitempty"`
}

type createObjectiveResponse struct {
	ObjectiveId uuid.UUID `json:"objective_id"`
}

func (s *ObjectiveService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createObjectiveRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "Objective title must be specified", http.StatusBadRequest)
		return
	}
	if params.Visibility == "" {
		params.Visibility = schema.Private
	}
	if err := schema.CheckValidVisibility(params.Visibility); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.CalcMethod == "" {
		params.CalcMethod = schema.WeightedSum
	}
	if err := schema.CheckValidCalcMethod(params.CalcMethod); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.Visibility == schema.Department && params.UnitId == nil {
		http.Error(w, "department objectives must specify a unit", http.StatusBadRequest)
		return
	}

	allowed, err := okr.CanCreateObjective(user, params.Visibility, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error checking permissions: %v", err), http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, fmt.Sprintf("user does not have permission to create %v objectives", params.Visibility), http.StatusForbidden)
		return
	}

	now := time.Now().UTC()
	newObjective := schema.Objective{
		Id:                uuid.New(),
		Title:             params.Title,
		Description:       params.Description,
		CycleId:           params.CycleId,
		OwnerId:           user.Id,
		Status:            schema.Draft,
		Progress:          0,
		Visibility:        params.Visibility,
		ApprovalStatus:    schema.ApprovalPending,
		CalcMethod:        params.CalcMethod,
		ParentObjectiveId: params.ParentObjectiveId,
		UnitId:            params.UnitId,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCycleExists(txn, params.CycleId); err != nil {
			return err
		}

		if params.UnitId != nil {
			if err := checkUnitExists(txn, *params.UnitId); err != nil {
				return err
			}
			if !user.IsAdmin {
				if err := checkUnitMember(txn, user.Id, *params.UnitId); err != nil {
					return err
				}
			}
		}

		if params.ParentObjectiveId != nil {
			parent, err := schema.GetObjective(*params.ParentObjectiveId, txn, false, false)
			if err != nil {
				return CodedError(err, http.StatusNotFound)
			}
			if parent.CycleId != newObjective.CycleId {
				return CodedError(fmt.Errorf("parent objective belongs to a different cycle"), http.StatusUnprocessableEntity)
			}
			if err := okr.CheckParentCycle(txn, newObjective.Id, *params.ParentObjectiveId); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
		}

		result := txn.Create(&newObjective)
		if result.Error != nil {
			slog.Error("sql error creating objective", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating objective: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createObjectiveResponse{ObjectiveId: newObjective.Id})
}

type ObjectiveInfo struct {
	Id                uuid.UUID  `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	CycleId           uuid.UUID  `json:"cycle_id"`
	OwnerId           uuid.UUID  `json:"owner_id"`
	OwnerName         string     `json:"owner_name,omitempty"`
	Status            string     `json:"status"`
	Progress          float64    `json:"progress"`
	Visibility        string     `json:"visibility"`
	ApprovalStatus    string     `json:"approval_status"`
	CalcMethod        string     `json:"calc_method"`
	ParentObjectiveId *uuid.UUID `json:"parent_objective_id,omitempty"`
	UnitId            *uuid.UUID `json:"unit_id,omitempty"`
}

func convertToObjectiveInfo(objective *schema.Objective) ObjectiveInfo {
	info := ObjectiveInfo{
		Id:                objective.Id,
		Title:             objective.Title,
		Description:       objective.Description,
		CycleId:           objective.CycleId,
		OwnerId:           objective.OwnerId,
		Status:            objective.Status,
		Progress:          objective.Progress,
		Visibility:        objective.Visibility,
		ApprovalStatus:    objective.ApprovalStatus,
		CalcMethod:        objective.CalcMethod,
		ParentObjectiveId: objective.ParentObjectiveId,
		UnitId:            objective.UnitId,
	}
	if objective.Owner != nil {
		info.OwnerName = objective.Owner.Username
	}
	return info
}

func (s *ObjectiveService) List(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { objectiveListMetric.Observe(time.Since(start).Seconds()) }()

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query, err := okr.VisibleObjectives(user, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing objectives: %v", err), http.StatusInternalServerError)
		return
	}

	if cycleIdParam := r.URL.Query().Get("cycle_id"); cycleIdParam != "" {
		cycleId, err := uuid.Parse(cycleIdParam)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid cycle_id %v", cycleIdParam), http.StatusBadRequest)
			return
		}
		query = query.Where("cycle_id = ?", cycleId)
	}

	var objectives []schema.Objective
	result := query.Preload("Owner").Order("created_at").Find(&objectives)
	if result.Error != nil {
		slog.Error("sql error listing objectives", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing objectives: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ObjectiveInfo, 0, len(objectives))
	for _, objective := range objectives {
		infos = append(infos, convertToObjectiveInfo(&objective))
	}
	utils.WriteJsonResponse(w, infos)
}

// canView checks a single objective against the caller's visibility scope.
func (s *ObjectiveService) canView(user schema.User, objectiveId uuid.UUID) (bool, error) {
	query, err := okr.VisibleObjectives(user, s.db)
	if err != nil {
		return false, err
	}

	var count int64
	result := query.Where("id = ?", objectiveId).Count(&count)
	if result.Error != nil {
		slog.Error("sql error checking objective visibility", "objective_id", objectiveId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return count != 0, nil
}

func (s *ObjectiveService) Get(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	visible, err := s.canView(user, objectiveId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading objective: %v", err), http.StatusInternalServerError)
		return
	}
	if !visible {
		http.Error(w, "objective not found", http.StatusNotFound)
		return
	}

	resolver := okr.NewResolver(s.db, okr.NewCache())
	view, err := resolver.Resolve(objectiveId)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, schema.ErrObjectiveNotFound) {
			code = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error loading objective: %v", err), code)
		return
	}

	utils.WriteJsonResponse(w, view)
}

type updateObjectiveRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	Status         *string `json:"status,omitempty"`
	Visibility     *string `json:"visibility,omitempty"`
	CalcMethod     *string `json:"calc_method,omitempty"`
	ApprovalStatus *string `json:"approval_status,omitempty"`
}

func (s *ObjectiveService) Update(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params updateObjectiveRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to edit this objective"), http.StatusForbidden)
		}

		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if params.Title != nil {
			if *params.Title == "" {
				return CodedError(fmt.Errorf("objective title cannot be empty"), http.StatusBadRequest)
			}
			updates["title"] = *params.Title
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		if params.Status != nil {
			if err := schema.CheckValidObjectiveStatus(*params.Status); err != nil {
				return CodedError(err, http.StatusBadRequest)
			}
			updates["status"] = *params.Status
		}
		if params.Visibility != nil {
			if err := schema.CheckValidVisibility(*params.Visibility); err != nil {
				return CodedError(err, http.StatusBadRequest)
			}
			allowed, err := okr.CanCreateObjective(user, *params.Visibility, txn)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if !allowed {
				return CodedError(fmt.Errorf("user does not have permission to set %v visibility", *params.Visibility), http.StatusForbidden)
			}
			updates["visibility"] = *params.Visibility
		}
		if params.CalcMethod != nil {
			if err := schema.CheckValidCalcMethod(*params.CalcMethod); err != nil {
				return CodedError(err, http.StatusBadRequest)
			}
			updates["calc_method"] = *params.CalcMethod
		}
		if params.ApprovalStatus != nil {
			if !user.IsAdmin {
				return CodedError(fmt.Errorf("only admins can change approval status"), http.StatusForbidden)
			}
			updates["approval_status"] = *params.ApprovalStatus
		}

		result := txn.Model(&schema.Objective{Id: objectiveId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating objective", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating objective: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ObjectiveService) Delete(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to delete this objective"), http.StatusForbidden)
		}

		// children survive their parent, detached rather than cascaded
		result := txn.Model(&schema.Objective{}).Where("parent_objective_id = ?", objectiveId).Update("parent_objective_id", nil)
		if result.Error != nil {
			slog.Error("sql error detaching child objectives", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.ObjectiveAlignment{}, "source_objective_id = ? OR aligned_objective_id = ?", objectiveId, objectiveId)
		if result.Error != nil {
			slog.Error("sql error deleting alignments", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.KeyResult{}, "objective_id = ?", objectiveId)
		if result.Error != nil {
			slog.Error("sql error deleting key results", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.Objective{Id: objectiveId})
		if result.Error != nil {
			slog.Error("sql error deleting objective", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting objective: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type recalculateResponse struct {
	ObjectiveId uuid.UUID `json:"objective_id"`
	Progress    float64   `json:"progress"`
}

func (s *ObjectiveService) Recalculate(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	visible, err := s.canView(user, objectiveId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error recalculating objective: %v", err), http.StatusInternalServerError)
		return
	}
	if !visible {
		http.Error(w, "objective not found", http.StatusNotFound)
		return
	}

	var progress float64
	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, true, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		progress = okr.AggregateProgress(objective.CalcMethod, objective.KeyResults)

		result := txn.Model(&schema.Objective{Id: objectiveId}).Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now().UTC(),
		})
		if result.Error != nil {
			slog.Error("sql error updating objective progress", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error recalculating objective: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, recalculateResponse{ObjectiveId: objectiveId, Progress: progress})
}

type rootPathResponse struct {
	Path []uuid.UUID `json:"path"`
}

func (s *ObjectiveService) RootPath(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	visible, err := s.canView(user, objectiveId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error resolving root path: %v", err), http.StatusInternalServerError)
		return
	}
	if !visible {
		http.Error(w, "objective not found", http.StatusNotFound)
		return
	}

	resolver := okr.NewResolver(s.db, okr.NewCache())
	path, err := resolver.RootPath(objectiveId)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, okr.ErrHierarchyCycle):
			code = http.StatusUnprocessableEntity
		case errors.Is(err, schema.ErrObjectiveNotFound):
			code = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error resolving root path: %v", err), code)
		return
	}

	utils.WriteJsonResponse(w, rootPathResponse{Path: path})
}

func (s *ObjectiveService) SetParent(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	parentId, err := utils.URLParamUUID(r, "parent_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if objectiveId == parentId {
		http.Error(w, "objective cannot be its own parent", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to edit this objective"), http.StatusForbidden)
		}

		parent, err := schema.GetObjective(parentId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}
		if parent.CycleId != objective.CycleId {
			return CodedError(fmt.Errorf("parent objective belongs to a different cycle"), http.StatusUnprocessableEntity)
		}
		if err := okr.CheckParentCycle(txn, objectiveId, parentId); err != nil {
			return CodedError(err, http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.Objective{Id: objectiveId}).Update("parent_objective_id", parentId)
		if result.Error != nil {
			slog.Error("sql error setting objective parent", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error setting parent: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *ObjectiveService) ClearParent(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to edit this objective"), http.StatusForbidden)
		}

		result := txn.Model(&schema.Objective{Id: objectiveId}).Update("parent_objective_id", nil)
		if result.Error != nil {
			slog.Error("sql error clearing objective parent", "objective_id", objectiveId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error clearing parent: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type createAlignmentRequest struct {
	AlignedObjectiveId uuid.UUID `json:"aligned_objective_id"`
	Weight             float64   `json:"weight"`
}

type createAlignmentResponse struct {
	AlignmentId uuid.UUID `json:"alignment_id"`
}

func (s *ObjectiveService) CreateAlignment(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createAlignmentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.AlignedObjectiveId == objectiveId {
		http.Error(w, "objective cannot align to itself", http.StatusUnprocessableEntity)
		return
	}
	if params.Weight <= 0 {
		params.Weight = 1
	}

	alignment := schema.ObjectiveAlignment{
		Id:                 uuid.New(),
		SourceObjectiveId:  objectiveId,
		AlignedObjectiveId: params.AlignedObjectiveId,
		AlignmentType:      schema.AlignmentParentChild,
		Weight:             params.Weight,
		CreatedBy:          user.Id,
		CreatedAt:          time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to align this objective"), http.StatusForbidden)
		}

		if err := checkObjectiveExists(txn, params.AlignedObjectiveId); err != nil {
			return err
		}

		var existing schema.ObjectiveAlignment
		result := txn.Limit(1).Find(&existing, "source_objective_id = ? AND aligned_objective_id = ?", objectiveId, params.AlignedObjectiveId)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate alignment", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("alignment between these objectives already exists"), http.StatusConflict)
		}

		result = txn.Create(&alignment)
		if result.Error != nil {
			slog.Error("sql error creating alignment", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating alignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createAlignmentResponse{AlignmentId: alignment.Id})
}

func (s *ObjectiveService) DeleteAlignment(w http.ResponseWriter, r *http.Request) {
	objectiveId, err := utils.URLParamUUID(r, "objective_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	alignmentId, err := utils.URLParamUUID(r, "alignment_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(objectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to edit this objective"), http.StatusForbidden)
		}

		var alignment schema.ObjectiveAlignment
		result := txn.Limit(1).Find(&alignment, "id = ? AND source_objective_id = ?", alignmentId, objectiveId)
		if result.Error != nil {
			slog.Error("sql error loading alignment", "alignment_id", alignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrAlignmentNotFound, http.StatusNotFound)
		}

		result = txn.Delete(&alignment)
		if result.Error != nil {
			slog.Error("sql error deleting alignment", "alignment_id", alignmentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting alignment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type exportResponse struct {
	Path string `json:"path"`
}

func (s *ObjectiveService) Export(w http.ResponseWriter, r *http.Request) {
	cycleId, err := utils.URLParamUUID(r, "cycle_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	query, err := okr.VisibleObjectives(user, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error exporting cycle: %v", err), http.StatusInternalServerError)
		return
	}

	var objectives []schema.Objective
	result := query.Preload("Owner").Preload("KeyResults").Where("cycle_id = ?", cycleId).Order("created_at").Find(&objectives)
	if result.Error != nil {
		slog.Error("sql error loading objectives for export", "cycle_id", cycleId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error exporting cycle: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)

	if err := writer.Write([]string{"objective", "owner", "status", "visibility", "progress", "key_results"}); err != nil {
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}
	for _, objective := range objectives {
		owner := ""
		if objective.Owner != nil {
			owner = objective.Owner.Username
		}
		row := []string{
			objective.Title,
			owner,
			objective.Status,
			objective.Visibility,
			strconv.FormatFloat(objective.Progress, 'f', 1, 64),
			strconv.Itoa(len(objective.KeyResults)),
		}
		if err := writer.Write(row); err != nil {
			http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}

	path := storage.OkrExportPath(cycleId)
	if err := s.storage.Write(path, &buffer); err != nil {
		slog.Error("error writing okr export", "cycle_id", cycleId, "error", err)
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, exportResponse{Path: path})
}

package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/okr"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KeyResultService struct {
	db         *gorm.DB
	userAuth   auth.IdentityProvider
	reconciler *okr.StatusReconciler
}

func (s *KeyResultService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.Create)

	r.Route("/{key_result_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Post("/update", s.Update)
		r.Post("/progress", s.RecordProgress)
		r.Delete("/", s.Delete)
	})

	return r
}

type createKeyResultRequest struct {
	ObjectiveId     uuid.UUID  `json:"objective_id"`
	Title           string     `json:"title"`
	MeasurementType string     `json:"measurement_type"`
	StartValue      float64    `json:"start_value"`
	TargetValue     float64    `json:"target_value"`
	Weight          float64    `json:"weight"`
	DueDate         *time.Time `json:"due_date,omitempty"`
}

type createKeyResultResponse struct {
	KeyResultId uuid.UUID `json:"key_result_id"`
}

func (s *KeyResultService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createKeyResultRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "Key result title must be specified", http.StatusBadRequest)
		return
	}
	if params.MeasurementType == "" {
		params.MeasurementType = schema.MeasureNumeric
	}
	if err := schema.CheckValidMeasurement(params.MeasurementType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if params.Weight <= 0 {
		params.Weight = 1
	}

	now := time.Now().UTC()
	newKeyResult := schema.KeyResult{
		Id:              uuid.New(),
		ObjectiveId:     params.ObjectiveId,
		OwnerId:         user.Id,
		Title:           params.Title,
		MeasurementType: params.MeasurementType,
		StartValue:      params.StartValue,
		CurrentValue:    params.StartValue,
		TargetValue:     params.TargetValue,
		Weight:          params.Weight,
		Status:          schema.NotStarted,
		DueDate:         params.DueDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	newKeyResult.Progress = okr.KeyResultProgress(&newKeyResult)

	err = s.db.Transaction(func(txn *gorm.DB) error {
		objective, err := schema.GetObjective(params.ObjectiveId, txn, false, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		allowed, err := okr.CanEditObjective(user, &objective, txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}
		if !allowed {
			return CodedError(fmt.Errorf("user does not have permission to add key results to this objective"), http.StatusForbidden)
		}

		result := txn.Create(&newKeyResult)
		if result.Error != nil {
			slog.Error("sql error creating key result", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating key result: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createKeyResultResponse{KeyResultId: newKeyResult.Id})
}

func (s *KeyResultService) Get(w http.ResponseWriter, r *http.Request) {
	keyResultId, err := utils.URLParamUUID(r, "key_result_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	keyResult, err := schema.GetKeyResult(keyResultId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading key result: %v", err), http.StatusNotFound)
		return
	}

	visible, err := s.canViewObjective(user, keyResult.ObjectiveId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading key result: %v", err), http.StatusInternalServerError)
		return
	}
	if !visible {
		http.Error(w, "key result not found", http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, keyResult)
}

// canViewObjective checks the parent objective against the caller's
// visibility scope, mirroring the objective service's read path.
func (s *KeyResultService) canViewObjective(user schema.User, objectiveId uuid.UUID) (bool, error) {
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

type updateKeyResultRequest struct {
	Title       *string    `json:"title,omitempty"`
	TargetValue *float64   `json:"target_value,omitempty"`
	Weight      *float64   `json:"weight,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (s *KeyResultService) Update(w http.ResponseWriter, r *http.Request) {
	keyResultId, err := utils.URLParamUUID(r, "key_result_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params updateKeyResultRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		keyResult, err := schema.GetKeyResult(keyResultId, txn)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		if err := s.checkCanEdit(txn, user, &keyResult); err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if params.Title != nil {
			if *params.Title == "" {
				return CodedError(fmt.Errorf("key result title cannot be empty"), http.StatusBadRequest)
			}
			updates["title"] = *params.Title
		}
		if params.Weight != nil {
			if *params.Weight <= 0 {
				return CodedError(fmt.Errorf("key result weight must be positive"), http.StatusBadRequest)
			}
			updates["weight"] = *params.Weight
		}
		if params.DueDate != nil {
			updates["due_date"] = *params.DueDate
		}
		if params.TargetValue != nil {
			if keyResult.MeasurementType == schema.MeasureBoolean {
				return CodedError(fmt.Errorf("boolean key results do not have a target value"), http.StatusUnprocessableEntity)
			}
			updates["target_value"] = *params.TargetValue
			updates["progress"] = okr.Progress(keyResult.CurrentValue, keyResult.StartValue, *params.TargetValue)
		}

		result := txn.Model(&schema.KeyResult{Id: keyResultId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating key result", "key_result_id", keyResultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating key result: %v", err), GetResponseCode(err))
		return
	}

	if _, err := s.reconciler.Reconcile(keyResultId); err != nil {
		slog.Error("error reconciling key result status", "key_result_id", keyResultId, "error", err)
	}

	utils.WriteSuccess(w)
}

type recordProgressRequest struct {
	Value *float64 `json:"value,omitempty"`
	Done  *bool    `json:"done,omitempty"`
}

type recordProgressResponse struct {
	KeyResultId uuid.UUID `json:"key_result_id"`
	Progress    float64   `json:"progress"`
	Status      string    `json:"status"`
}

func (s *KeyResultService) RecordProgress(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { progressWriteMetric.Observe(time.Since(start).Seconds()) }()

	keyResultId, err := utils.URLParamUUID(r, "key_result_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params recordProgressRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var progress float64
	err = s.db.Transaction(func(txn *gorm.DB) error {
		keyResult, err := schema.GetKeyResult(keyResultId, txn)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		if err := s.checkCanEdit(txn, user, &keyResult); err != nil {
			return err
		}

		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if keyResult.MeasurementType == schema.MeasureBoolean {
			if params.Done == nil {
				return CodedError(fmt.Errorf("boolean key results take a done flag"), http.StatusBadRequest)
			}
			keyResult.BooleanValue = *params.Done
			updates["boolean_value"] = *params.Done
		} else {
			if params.Value == nil {
				return CodedError(fmt.Errorf("numeric key results take a value"), http.StatusBadRequest)
			}
			keyResult.CurrentValue = *params.Value
			updates["current_value"] = *params.Value
		}

		progress = okr.KeyResultProgress(&keyResult)
		updates["progress"] = progress

		result := txn.Model(&schema.KeyResult{Id: keyResultId}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error recording key result progress", "key_result_id", keyResultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error recording progress: %v", err), GetResponseCode(err))
		return
	}

	if _, err := s.reconciler.Reconcile(keyResultId); err != nil {
		slog.Error("error reconciling key result status", "key_result_id", keyResultId, "error", err)
	}

	keyResult, err := schema.GetKeyResult(keyResultId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading key result: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, recordProgressResponse{
		KeyResultId: keyResultId,
		Progress:    keyResult.Progress,
		Status:      keyResult.Status,
	})
}

func (s *KeyResultService) Delete(w http.ResponseWriter, r *http.Request) {
	keyResultId, err := utils.URLParamUUID(r, "key_result_id")
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
		keyResult, err := schema.GetKeyResult(keyResultId, txn)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		if err := s.checkCanEdit(txn, user, &keyResult); err != nil {
			return err
		}

		result := txn.Delete(&schema.KeyResult{Id: keyResultId})
		if result.Error != nil {
			slog.Error("sql error deleting key result", "key_result_id", keyResultId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting key result: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// checkCanEdit allows the key result owner, and anyone allowed to edit the
// parent objective.
func (s *KeyResultService) checkCanEdit(txn *gorm.DB, user schema.User, keyResult *schema.KeyResult) error {
	if keyResult.OwnerId == user.Id {
		return nil
	}

	objective, err := schema.GetObjective(keyResult.ObjectiveId, txn, false, false)
	if err != nil {
		return CodedError(err, http.StatusNotFound)
	}

	allowed, err := okr.CanEditObjective(user, &objective, txn)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if !allowed {
		return CodedError(fmt.Errorf("user does not have permission to modify this key result"), http.StatusForbidden)
	}
	return nil
}

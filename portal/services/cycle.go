package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CycleService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CycleService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.AdminOnly(s.db)).Post("/create", s.Create)
	r.Get("/list", s.List)

	r.Route("/{cycle_id}", func(r chi.Router) {
		r.Get("/", s.Get)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOnly(s.db))

			r.Post("/activate", s.Activate)
			r.Post("/archive", s.Archive)
			r.Delete("/", s.Delete)
		})
	})

	return r
}

type createCycleRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

type createCycleResponse struct {
	CycleId uuid.UUID `json:"cycle_id"`
}

func (s *CycleService) Create(w http.ResponseWriter, r *http.Request) {
	var params createCycleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "Cycle name must be specified", http.StatusBadRequest)
		return
	}
	if !params.EndDate.After(params.StartDate) {
		http.Error(w, "cycle end date must be after start date", http.StatusBadRequest)
		return
	}

	newCycle := schema.OkrCycle{
		Id:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		StartDate:   params.StartDate,
		EndDate:     params.EndDate,
		Status:      schema.CycleUpcoming,
	}

	result := s.db.Create(&newCycle)
	if result.Error != nil {
		slog.Error("sql error creating cycle", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating cycle: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, createCycleResponse{CycleId: newCycle.Id})
}

func (s *CycleService) List(w http.ResponseWriter, r *http.Request) {
	var cycles []schema.OkrCycle
	result := s.db.Order("start_date desc").Find(&cycles)
	if result.Error != nil {
		slog.Error("sql error listing cycles", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing cycles: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, cycles)
}

func (s *CycleService) Get(w http.ResponseWriter, r *http.Request) {
	cycleId, err := utils.URLParamUUID(r, "cycle_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cycle, err := schema.GetCycle(cycleId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading cycle: %v", err), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, cycle)
}

// Activate marks a cycle active. At most one cycle is active at a time, so
// any currently active cycle is completed in the same transaction.
func (s *CycleService) Activate(w http.ResponseWriter, r *http.Request) {
	cycleId, err := utils.URLParamUUID(r, "cycle_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		cycle, err := schema.GetCycle(cycleId, txn)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}
		if cycle.Status == schema.CycleArchived {
			return CodedError(fmt.Errorf("archived cycles cannot be activated"), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.OkrCycle{}).
			Where("status = ? AND id != ?", schema.CycleActive, cycleId).
			Update("status", schema.CycleCompleted)
		if result.Error != nil {
			slog.Error("sql error completing previously active cycles", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.OkrCycle{Id: cycleId}).Update("status", schema.CycleActive)
		if result.Error != nil {
			slog.Error("sql error activating cycle", "cycle_id", cycleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error activating cycle: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CycleService) Archive(w http.ResponseWriter, r *http.Request) {
	cycleId, err := utils.URLParamUUID(r, "cycle_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCycleExists(txn, cycleId); err != nil {
			return err
		}

		result := txn.Model(&schema.OkrCycle{Id: cycleId}).Update("status", schema.CycleArchived)
		if result.Error != nil {
			slog.Error("sql error archiving cycle", "cycle_id", cycleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error archiving cycle: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CycleService) Delete(w http.ResponseWriter, r *http.Request) {
	cycleId, err := utils.URLParamUUID(r, "cycle_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCycleExists(txn, cycleId); err != nil {
			return err
		}

		var count int64
		result := txn.Model(&schema.Objective{}).Where("cycle_id = ?", cycleId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting cycle objectives", "cycle_id", cycleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count != 0 {
			return CodedError(fmt.Errorf("cycle has %d objectives and cannot be deleted", count), http.StatusConflict)
		}

		result = txn.Delete(&schema.OkrCycle{Id: cycleId})
		if result.Error != nil {
			slog.Error("sql error deleting cycle", "cycle_id", cycleId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting cycle: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

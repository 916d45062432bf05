package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UnitService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UnitService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.AdminOnly(s.db)).Post("/create", s.CreateUnit)

	r.Get("/list", s.List)

	r.Route("/{unit_id}", func(r chi.Router) {
		r.With(auth.AdminOnly(s.db)).Delete("/", s.DeleteUnit)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOnly(s.db))

			r.Post("/users/{user_id}", s.AddUserToUnit)
			r.Delete("/users/{user_id}", s.RemoveUserFromUnit)
			r.Post("/users/{user_id}/primary", s.SetPrimary)
		})

		r.With(auth.UnitMemberOnly(s.db)).Get("/users", s.UnitUsers)
	})

	return r
}

type createUnitRequest struct {
	Name string `json:"name"`
}

type createUnitResponse struct {
	UnitId uuid.UUID `json:"unit_id"`
}

func (s *UnitService) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var params createUnitRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "Unit name must be specified", http.StatusBadRequest)
		return
	}

	newUnit := schema.BusinessUnit{Id: uuid.New(), Name: params.Name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existingUnit schema.BusinessUnit
		result := txn.Limit(1).Find(&existingUnit, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate unit name", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("unit with name %v already exists", params.Name), http.StatusConflict)
		}

		result = txn.Create(&newUnit)
		if result.Error != nil {
			slog.Error("sql error creating new unit", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating unit: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createUnitResponse{UnitId: newUnit.Id})
}

func (s *UnitService) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	unitId, err := utils.URLParamUUID(r, "unit_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	unit := schema.BusinessUnit{Id: unitId}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUnitExists(txn, unit.Id); err != nil {
			return err
		}

		result := txn.Delete(&unit)
		if result.Error != nil {
			slog.Error("sql error deleting unit", "unit_id", unitId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// department objectives of the deleted unit fall back to private
		result = txn.Model(&schema.Objective{}).Where("unit_id = ?", unit.Id).
			Updates(map[string]interface{}{"unit_id": nil, "visibility": schema.Private})
		if result.Error != nil {
			slog.Error("sql error detaching objectives from deleted unit", "unit_id", unitId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.UserUnit{}, "unit_id = ?", unit.Id)
		if result.Error != nil {
			slog.Error("sql error deleting unit memberships", "unit_id", unitId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting unit: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type UnitInfo struct {
	Id   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (s *UnitService) List(w http.ResponseWriter, r *http.Request) {
	var units []schema.BusinessUnit
	result := s.db.Order("name").Find(&units)
	if result.Error != nil {
		slog.Error("sql error listing units", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing units: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UnitInfo, 0, len(units))
	for _, unit := range units {
		infos = append(infos, UnitInfo{Id: unit.Id, Name: unit.Name})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *UnitService) AddUserToUnit(w http.ResponseWriter, r *http.Request) {
	unitId, err := utils.URLParamUUID(r, "unit_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUnitExists(txn, unitId); err != nil {
			return err
		}
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		var existing schema.UserUnit
		result := txn.Limit(1).Find(&existing, "unit_id = ? AND user_id = ?", unitId, userId)
		if result.Error != nil {
			slog.Error("sql error checking for existing membership", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("user %v is already a member of unit %v", userId, unitId), http.StatusConflict)
		}

		var count int64
		countResult := txn.Model(&schema.UserUnit{}).Where("user_id = ?", userId).Count(&count)
		if countResult.Error != nil {
			slog.Error("sql error counting user memberships", "error", countResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// first membership becomes the primary unit
		membership := schema.UserUnit{UnitId: unitId, UserId: userId, IsPrimary: count == 0}
		result = txn.Create(&membership)
		if result.Error != nil {
			slog.Error("sql error adding user to unit", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error adding user to unit: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UnitService) RemoveUserFromUnit(w http.ResponseWriter, r *http.Request) {
	unitId, err := utils.URLParamUUID(r, "unit_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUnitMember(txn, userId, unitId); err != nil {
			return err
		}

		result := txn.Delete(&schema.UserUnit{}, "unit_id = ? AND user_id = ?", unitId, userId)
		if result.Error != nil {
			slog.Error("sql error removing user from unit", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error removing user from unit: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UnitService) SetPrimary(w http.ResponseWriter, r *http.Request) {
	unitId, err := utils.URLParamUUID(r, "unit_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUnitMember(txn, userId, unitId); err != nil {
			return err
		}

		result := txn.Model(&schema.UserUnit{}).Where("user_id = ?", userId).Update("is_primary", false)
		if result.Error != nil {
			slog.Error("sql error clearing primary unit flags", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.UserUnit{}).Where("unit_id = ? AND user_id = ?", unitId, userId).Update("is_primary", true)
		if result.Error != nil {
			slog.Error("sql error setting primary unit", "user_id", userId, "unit_id", unitId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error setting primary unit: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UnitService) UnitUsers(w http.ResponseWriter, r *http.Request) {
	unitId, err := utils.URLParamUUID(r, "unit_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var users []schema.User
	result := s.db.Joins("JOIN user_units ON user_units.user_id = users.id").Where("user_units.unit_id = ?", unitId).Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing unit users", "unit_id", unitId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing unit users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

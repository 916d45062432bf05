package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUnitNotFound      = errors.New("business unit not found")
	ErrUserUnitNotFound  = errors.New("user unit membership not found")
	ErrObjectiveNotFound = errors.New("objective not found")
	ErrKeyResultNotFound = errors.New("key result not found")
	ErrCycleNotFound     = errors.New("cycle not found")
	ErrCampaignNotFound  = errors.New("survey campaign not found")
	ErrSessionNotFound   = errors.New("live session not found")
	ErrAlignmentNotFound = errors.New("alignment not found")
	ErrDbAccessFailed    = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetObjective(objectiveId uuid.UUID, db *gorm.DB, loadKeyResults, loadOwner bool) (Objective, error) {
	var objective Objective

	var result *gorm.DB = db
	if loadKeyResults {
		result = result.Preload("KeyResults")
	}
	if loadOwner {
		result = result.Preload("Owner")
	}
	result = result.First(&objective, "id = ?", objectiveId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return objective, ErrObjectiveNotFound
		}
		slog.Error("sql error in get objective", "objective_id", objectiveId, "error", result.Error)
		return objective, ErrDbAccessFailed
	}

	return objective, nil
}

func GetKeyResult(keyResultId uuid.UUID, db *gorm.DB) (KeyResult, error) {
	var keyResult KeyResult

	result := db.First(&keyResult, "id = ?", keyResultId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return keyResult, ErrKeyResultNotFound
		}
		slog.Error("sql error in get key result", "key_result_id", keyResultId, "error", result.Error)
		return keyResult, ErrDbAccessFailed
	}

	return keyResult, nil
}

func GetCycle(cycleId uuid.UUID, db *gorm.DB) (OkrCycle, error) {
	var cycle OkrCycle

	result := db.First(&cycle, "id = ?", cycleId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return cycle, ErrCycleNotFound
		}
		slog.Error("sql error in get cycle", "cycle_id", cycleId, "error", result.Error)
		return cycle, ErrDbAccessFailed
	}

	return cycle, nil
}

func GetUnit(unitId uuid.UUID, db *gorm.DB) (BusinessUnit, error) {
	var unit BusinessUnit

	result := db.First(&unit, "id = ?", unitId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return unit, ErrUnitNotFound
		}
		slog.Error("sql error in get unit", "unit_id", unitId, "error", result.Error)
		return unit, ErrDbAccessFailed
	}

	return unit, nil
}

func GetUserUnit(unitId, userId uuid.UUID, db *gorm.DB) (UserUnit, error) {
	var membership UserUnit
	result := db.First(&membership, "unit_id = ? and user_id = ?", unitId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return membership, ErrUserUnitNotFound
		}
		slog.Error("sql error in get user unit", "unit_id", unitId, "user_id", userId, "error", result.Error)
		return membership, ErrDbAccessFailed
	}

	return membership, nil
}

// GetPrimaryUnit returns the caller's primary business unit membership, or
// ErrUserUnitNotFound if none is recorded.
func GetPrimaryUnit(userId uuid.UUID, db *gorm.DB) (UserUnit, error) {
	var membership UserUnit
	result := db.First(&membership, "user_id = ? and is_primary = ?", userId, true)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return membership, ErrUserUnitNotFound
		}
		slog.Error("sql error in get primary unit", "user_id", userId, "error", result.Error)
		return membership, ErrDbAccessFailed
	}

	return membership, nil
}

func GetUserUnitIds(userId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var memberships []UserUnit
	result := db.Find(&memberships, "user_id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error in get user unit ids", "user_id", userId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UnitId)
	}
	return ids, nil
}

// GetRoleSettings returns the single okr_role_settings row, creating it empty
// if it does not exist yet.
func GetRoleSettings(db *gorm.DB) (OkrRoleSettings, error) {
	var settings OkrRoleSettings
	result := db.First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			settings = OkrRoleSettings{Id: uuid.New()}
			if create := db.Create(&settings); create.Error != nil {
				slog.Error("sql error creating default role settings", "error", create.Error)
				return settings, ErrDbAccessFailed
			}
			return settings, nil
		}
		slog.Error("sql error in get role settings", "error", result.Error)
		return settings, ErrDbAccessFailed
	}

	return settings, nil
}

func GetCampaign(campaignId uuid.UUID, db *gorm.DB, loadQuestions bool) (SurveyCampaign, error) {
	var campaign SurveyCampaign

	var result *gorm.DB = db
	if loadQuestions {
		result = result.Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		})
	}
	result = result.First(&campaign, "id = ?", campaignId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return campaign, ErrCampaignNotFound
		}
		slog.Error("sql error in get campaign", "campaign_id", campaignId, "error", result.Error)
		return campaign, ErrDbAccessFailed
	}

	return campaign, nil
}

func GetSession(sessionId uuid.UUID, db *gorm.DB, loadPolls bool) (LiveSession, error) {
	var session LiveSession

	var result *gorm.DB = db
	if loadPolls {
		result = result.Preload("Polls", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).Preload("Polls.Options")
	}
	result = result.First(&session, "id = ?", sessionId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return session, ErrSessionNotFound
		}
		slog.Error("sql error in get session", "session_id", sessionId, "error", result.Error)
		return session, ErrDbAccessFailed
	}

	return session, nil
}

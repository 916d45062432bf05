package auth

import (
	"errors"
	"fmt"
	"net/http"

	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func isUnitMember(unitId, userId uuid.UUID, db *gorm.DB) (bool, error) {
	_, err := schema.GetUserUnit(unitId, userId, db)
	if err != nil {
		if errors.Is(err, schema.ErrUserUnitNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func UnitMemberOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			unitId, err := utils.URLParamUUID(r, "unit_id")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			isMember, err := isUnitMember(unitId, user.Id, db)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin && !isMember {
				http.Error(w, "user must be unit member to access endpoint", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// SupervisorOf reports whether supervisor appears in the supervisor chain of
// the given user. The walk is capped to avoid loops in bad data.
func SupervisorOf(supervisorId, userId uuid.UUID, db *gorm.DB) (bool, error) {
	const maxChain = 16

	current := userId
	for i := 0; i < maxChain; i++ {
		user, err := schema.GetUser(current, db)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return false, nil
			}
			return false, err
		}
		if user.SupervisorId == nil {
			return false, nil
		}
		if *user.SupervisorId == supervisorId {
			return true, nil
		}
		current = *user.SupervisorId
	}

	return false, nil
}

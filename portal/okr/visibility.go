package okr

import (
	"errors"
	"log/slog"
	"strings"

	"engagehub/portal/schema"

	"gorm.io/gorm"
)

type permission int // Private so that no other permissions can be defined

const (
	PermCreateOrgObjectives permission = iota
	PermCreateDeptObjectives
	PermCreateTeamObjectives
	PermEditAllObjectives
	PermViewAllObjectives
)

// allowedRoles maps the closed permission enum onto the settings row. The
// original stored these behind dynamically constructed keys; a switch keeps
// the mapping total and type checked.
func allowedRoles(settings *schema.OkrRoleSettings, perm permission) string {
	switch perm {
	case PermCreateOrgObjectives:
		return settings.CanCreateOrgObjectives
	case PermCreateDeptObjectives:
		return settings.CanCreateDeptObjectives
	case PermCreateTeamObjectives:
		return settings.CanCreateTeamObjectives
	case PermEditAllObjectives:
		return settings.CanEditAllObjectives
	case PermViewAllObjectives:
		return settings.CanViewAllObjectives
	default:
		return ""
	}
}

func roleAllowed(roles string, role string) bool {
	if roles == "" {
		return false
	}
	for _, allowed := range strings.Split(roles, ",") {
		if strings.TrimSpace(allowed) == role {
			return true
		}
	}
	return false
}

// HasPermission checks the caller's role against the okr_role_settings row.
// Admins always pass. Denial is an ordinary false, not an error.
func HasPermission(user schema.User, perm permission, db *gorm.DB) (bool, error) {
	if user.IsAdmin {
		return true, nil
	}

	settings, err := schema.GetRoleSettings(db)
	if err != nil {
		return false, err
	}

	return roleAllowed(allowedRoles(&settings, perm), user.Role), nil
}

// CanCreateObjective decides whether the caller may create an objective with
// the given visibility tier. Private objectives are always allowed.
func CanCreateObjective(user schema.User, visibility string, db *gorm.DB) (bool, error) {
	switch visibility {
	case schema.Private:
		return true, nil
	case schema.Team:
		return HasPermission(user, PermCreateTeamObjectives, db)
	case schema.Department:
		return HasPermission(user, PermCreateDeptObjectives, db)
	case schema.Organization:
		return HasPermission(user, PermCreateOrgObjectives, db)
	default:
		return false, nil
	}
}

// CanEditObjective allows admins, owners, and roles granted edit-all.
func CanEditObjective(user schema.User, objective *schema.Objective, db *gorm.DB) (bool, error) {
	if user.IsAdmin || objective.OwnerId == user.Id {
		return true, nil
	}
	return HasPermission(user, PermEditAllObjectives, db)
}

// VisibleObjectives composes the listing query for the caller:
//
//	organization  - everyone
//	department    - members of the owning objective's unit when it matches the
//	                caller's primary unit
//	team          - objectives owned by the caller's supervisor's reports or
//	                by the caller's own direct reports
//	private       - owner only
//
// If the caller has no supervisor or primary unit recorded, the team and
// department tiers degrade to the caller's own rows in that tier.
func VisibleObjectives(user schema.User, db *gorm.DB) (*gorm.DB, error) {
	viewAll, err := HasPermission(user, PermViewAllObjectives, db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&schema.Objective{})
	if viewAll {
		return query, nil
	}

	cond := db.Where("visibility = ?", schema.Organization).
		Or("owner_id = ?", user.Id)

	primaryUnit, err := schema.GetPrimaryUnit(user.Id, db)
	if err != nil && !errors.Is(err, schema.ErrUserUnitNotFound) {
		return nil, err
	}
	if err == nil {
		cond = cond.Or("visibility = ? AND unit_id = ?", schema.Department, primaryUnit.UnitId)
	} else {
		slog.Info("no primary unit recorded, department scope degraded to own rows", "user_id", user.Id)
	}

	if user.SupervisorId != nil {
		cond = cond.Or(
			"visibility = ? AND owner_id IN (?)",
			schema.Team,
			db.Model(&schema.User{}).Select("id").Where("supervisor_id = ? OR supervisor_id = ?", *user.SupervisorId, user.Id),
		)
	} else {
		cond = cond.Or(
			"visibility = ? AND owner_id IN (?)",
			schema.Team,
			db.Model(&schema.User{}).Select("id").Where("supervisor_id = ?", user.Id),
		)
	}

	return query.Where(cond), nil
}

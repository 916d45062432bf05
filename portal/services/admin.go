package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type AdminService struct {
	db               *gorm.DB
	userAuth         auth.IdentityProvider
	roleDefaultsPath string
}

func (s *AdminService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/role-settings", s.GetRoleSettings)

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly(s.db))

		r.Post("/role-settings", s.UpdateRoleSettings)
		r.Post("/role-settings/reset", s.ResetRoleSettings)
	})

	return r
}

type RoleSettingsInfo struct {
	CanCreateOrgObjectives  []string `json:"can_create_org_objectives" yaml:"can_create_org_objectives"`
	CanCreateDeptObjectives []string `json:"can_create_dept_objectives" yaml:"can_create_dept_objectives"`
	CanCreateTeamObjectives []string `json:"can_create_team_objectives" yaml:"can_create_team_objectives"`
	CanEditAllObjectives    []string `json:"can_edit_all_objectives" yaml:"can_edit_all_objectives"`
	CanViewAllObjectives    []string `json:"can_view_all_objectives" yaml:"can_view_all_objectives"`
}

func splitRoles(roles string) []string {
	if roles == "" {
		return []string{}
	}
	parts := strings.Split(roles, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinRoles(roles []string) string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ",")
}

func convertToRoleSettingsInfo(settings *schema.OkrRoleSettings) RoleSettingsInfo {
	return RoleSettingsInfo{
		CanCreateOrgObjectives:  splitRoles(settings.CanCreateOrgObjectives),
		CanCreateDeptObjectives: splitRoles(settings.CanCreateDeptObjectives),
		CanCreateTeamObjectives: splitRoles(settings.CanCreateTeamObjectives),
		CanEditAllObjectives:    splitRoles(settings.CanEditAllObjectives),
		CanViewAllObjectives:    splitRoles(settings.CanViewAllObjectives),
	}
}

func (s *AdminService) GetRoleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := schema.GetRoleSettings(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading role settings: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToRoleSettingsInfo(&settings))
}

func (s *AdminService) applyRoleSettings(info RoleSettingsInfo) error {
	return s.db.Transaction(func(txn *gorm.DB) error {
		settings, err := schema.GetRoleSettings(txn)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		updates := map[string]interface{}{
			"can_create_org_objectives":  joinRoles(info.CanCreateOrgObjectives),
			"can_create_dept_objectives": joinRoles(info.CanCreateDeptObjectives),
			"can_create_team_objectives": joinRoles(info.CanCreateTeamObjectives),
			"can_edit_all_objectives":    joinRoles(info.CanEditAllObjectives),
			"can_view_all_objectives":    joinRoles(info.CanViewAllObjectives),
			"updated_at":                 time.Now().UTC(),
		}

		result := txn.Model(&schema.OkrRoleSettings{Id: settings.Id}).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating role settings", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})
}

func (s *AdminService) UpdateRoleSettings(w http.ResponseWriter, r *http.Request) {
	var params RoleSettingsInfo
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := s.applyRoleSettings(params); err != nil {
		http.Error(w, fmt.Sprintf("error updating role settings: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func loadRoleDefaults(path string) (RoleSettingsInfo, error) {
	var defaults RoleSettingsInfo

	contents, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("unable to read role defaults file %v: %w", path, err)
	}

	if err := yaml.Unmarshal(contents, &defaults); err != nil {
		return defaults, fmt.Errorf("unable to parse role defaults file %v: %w", path, err)
	}

	return defaults, nil
}

// ResetRoleSettings restores the role settings row from the defaults file the
// server was started with.
func (s *AdminService) ResetRoleSettings(w http.ResponseWriter, r *http.Request) {
	if s.roleDefaultsPath == "" {
		http.Error(w, "no role defaults file configured", http.StatusNotFound)
		return
	}

	defaults, err := loadRoleDefaults(s.roleDefaultsPath)
	if err != nil {
		slog.Error("error loading role defaults", "path", s.roleDefaultsPath, "error", err)
		http.Error(w, fmt.Sprintf("error loading role defaults: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.applyRoleSettings(defaults); err != nil {
		http.Error(w, fmt.Sprintf("error resetting role settings: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

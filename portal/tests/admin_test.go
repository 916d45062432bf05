package tests

import (
	"errors"
	"reflect"
	"testing"

	"engagehub/portal/services"
)

func TestRoleSettingsRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	settings, err := admin.getRoleSettings()
	if err != nil {
		t.Fatal(err)
	}
	if len(settings.CanCreateOrgObjectives) != 0 {
		t.Fatal("settings should start empty")
	}

	want := services.RoleSettingsInfo{
		CanCreateOrgObjectives:  []string{"executive"},
		CanCreateDeptObjectives: []string{"executive", "manager"},
		CanViewAllObjectives:    []string{"hr"},
	}
	if err := admin.updateRoleSettings(want); err != nil {
		t.Fatal(err)
	}

	settings, err = admin.getRoleSettings()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(settings.CanCreateOrgObjectives, want.CanCreateOrgObjectives) ||
		!reflect.DeepEqual(settings.CanCreateDeptObjectives, want.CanCreateDeptObjectives) ||
		!reflect.DeepEqual(settings.CanViewAllObjectives, want.CanViewAllObjectives) {
		t.Fatalf("settings did not round trip: %+v", settings)
	}
}

func TestRoleSettingsAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("settingsuser")
	if err != nil {
		t.Fatal(err)
	}

	// reads are open to any authenticated user, writes are not
	if _, err := user.getRoleSettings(); err != nil {
		t.Fatal(err)
	}

	err = user.updateRoleSettings(services.RoleSettingsInfo{CanViewAllObjectives: []string{"employee"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRoleSettingsResetWithoutDefaults(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	// no defaults file is configured in tests
	if err := admin.Post("/admin/role-settings/reset").Do(nil); err == nil {
		t.Fatal("reset without configured defaults should fail")
	}
}

package okr

import (
	"testing"

	"engagehub/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setRoleSettings(t *testing.T, db *gorm.DB, settings schema.OkrRoleSettings) {
	settings.Id = uuid.New()
	if err := db.Create(&settings).Error; err != nil {
		t.Fatal(err)
	}
}

func TestHasPermissionAdminBypass(t *testing.T) {
	db := newTestDb(t)
	admin := schema.User{Id: uuid.New(), Username: "admin", Email: "admin@mail.com", Password: []byte("x"), IsAdmin: true, Role: "hr"}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatal(err)
	}

	allowed, err := HasPermission(admin, PermCreateOrgObjectives, db)
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Fatal("admins always pass permission checks")
	}
}

func TestCanCreateObjectiveByRole(t *testing.T) {
	db := newTestDb(t)
	setRoleSettings(t, db, schema.OkrRoleSettings{
		CanCreateOrgObjectives:  "hr,executive",
		CanCreateDeptObjectives: "hr,executive,manager",
		CanCreateTeamObjectives: "hr,executive,manager,team_lead",
	})

	teamLead := newTestUser(t, db, "lead", "team_lead")
	manager := newTestUser(t, db, "manager", "manager")
	employee := newTestUser(t, db, "employee", "employee")

	tests := []struct {
		name       string
		user       schema.User
		visibility string
		allowed    bool
	}{
		{"anyone creates private", employee, schema.Private, true},
		{"team lead creates team", teamLead, schema.Team, true},
		{"team lead denied department", teamLead, schema.Department, false},
		{"team lead denied organization", teamLead, schema.Organization, false},
		{"manager creates department", manager, schema.Department, true},
		{"manager denied organization", manager, schema.Organization, false},
		{"employee denied team", employee, schema.Team, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := CanCreateObjective(tt.user, tt.visibility, db)
			if err != nil {
				t.Fatal(err)
			}
			if allowed != tt.allowed {
				t.Fatalf("CanCreateObjective(%v, %v) = %v, expected %v", tt.user.Role, tt.visibility, allowed, tt.allowed)
			}
		})
	}
}

func TestCanEditObjective(t *testing.T) {
	db := newTestDb(t)
	setRoleSettings(t, db, schema.OkrRoleSettings{CanEditAllObjectives: "hr"})

	owner := newTestUser(t, db, "owner", "employee")
	hr := newTestUser(t, db, "hr_person", "hr")
	other := newTestUser(t, db, "other", "employee")
	cycle := newTestCycle(t, db)
	objective := newTestObjective(t, db, owner, cycle, nil)

	for _, tt := range []struct {
		name    string
		user    schema.User
		allowed bool
	}{
		{"owner edits", owner, true},
		{"edit-all role edits", hr, true},
		{"unrelated user denied", other, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			allowed, err := CanEditObjective(tt.user, &objective, db)
			if err != nil {
				t.Fatal(err)
			}
			if allowed != tt.allowed {
				t.Fatalf("expected %v, got %v", tt.allowed, allowed)
			}
		})
	}
}

func listVisible(t *testing.T, db *gorm.DB, user schema.User) []schema.Objective {
	query, err := VisibleObjectives(user, db)
	if err != nil {
		t.Fatal(err)
	}
	var objectives []schema.Objective
	if err := query.Find(&objectives).Error; err != nil {
		t.Fatal(err)
	}
	return objectives
}

func TestVisibleObjectives(t *testing.T) {
	db := newTestDb(t)
	setRoleSettings(t, db, schema.OkrRoleSettings{CanViewAllObjectives: "hr"})

	supervisor := newTestUser(t, db, "supervisor", "manager")
	teammateA := newTestUser(t, db, "teammate_a", "employee")
	teammateB := newTestUser(t, db, "teammate_b", "employee")
	outsider := newTestUser(t, db, "outsider", "employee")
	hr := newTestUser(t, db, "hr_person", "hr")

	for _, u := range []*schema.User{&teammateA, &teammateB} {
		if err := db.Model(&schema.User{Id: u.Id}).Update("supervisor_id", supervisor.Id).Error; err != nil {
			t.Fatal(err)
		}
		u.SupervisorId = &supervisor.Id
	}

	unit := schema.BusinessUnit{Id: uuid.New(), Name: "engineering"}
	if err := db.Create(&unit).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&schema.UserUnit{UnitId: unit.Id, UserId: teammateA.Id, IsPrimary: true}).Error; err != nil {
		t.Fatal(err)
	}

	cycle := newTestCycle(t, db)

	orgObjective := newTestObjective(t, db, outsider, cycle, nil)
	if err := db.Model(&schema.Objective{Id: orgObjective.Id}).Update("visibility", schema.Organization).Error; err != nil {
		t.Fatal(err)
	}

	deptObjective := newTestObjective(t, db, outsider, cycle, nil)
	if err := db.Model(&schema.Objective{Id: deptObjective.Id}).
		Updates(map[string]interface{}{"visibility": schema.Department, "unit_id": unit.Id}).Error; err != nil {
		t.Fatal(err)
	}

	teamObjective := newTestObjective(t, db, teammateB, cycle, nil)
	if err := db.Model(&schema.Objective{Id: teamObjective.Id}).Update("visibility", schema.Team).Error; err != nil {
		t.Fatal(err)
	}

	privateObjective := newTestObjective(t, db, outsider, cycle, nil)

	visible := func(objectives []schema.Objective, id uuid.UUID) bool {
		for _, o := range objectives {
			if o.Id == id {
				return true
			}
		}
		return false
	}

	// teammate A shares a supervisor with B, has a primary unit, sees all but
	// the outsider's private objective
	forA := listVisible(t, db, teammateA)
	if !visible(forA, orgObjective.Id) || !visible(forA, deptObjective.Id) || !visible(forA, teamObjective.Id) {
		t.Fatal("teammate should see organization, department, and team tiers")
	}
	if visible(forA, privateObjective.Id) {
		t.Fatal("teammate should not see another user's private objective")
	}

	// the outsider has no supervisor and no unit, team and department tiers
	// degrade to their own rows
	forOutsider := listVisible(t, db, outsider)
	if visible(forOutsider, teamObjective.Id) {
		t.Fatal("outsider should not see the team objective")
	}
	if !visible(forOutsider, privateObjective.Id) || !visible(forOutsider, deptObjective.Id) {
		t.Fatal("outsider should see their own rows regardless of tier")
	}

	// view-all role sees everything
	forHr := listVisible(t, db, hr)
	for _, id := range []uuid.UUID{orgObjective.Id, deptObjective.Id, teamObjective.Id, privateObjective.Id} {
		if !visible(forHr, id) {
			t.Fatal("view-all role should see every objective")
		}
	}

	// the supervisor sees their direct reports' team objectives
	forSupervisor := listVisible(t, db, supervisor)
	if !visible(forSupervisor, teamObjective.Id) {
		t.Fatal("supervisor should see direct reports' team objectives")
	}
}

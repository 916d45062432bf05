package tests

import (
	"errors"
	"testing"

	"engagehub/portal/services"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	info, err := user.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Username != "alice" || info.Email != "alice@mail.com" || info.Admin {
		t.Fatal("user info wrong")
	}
	if info.Role != "employee" {
		t.Fatalf("expected default role employee, got %v", info.Role)
	}
}

func TestSignupRoleNotHonored(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	err = admin.updateRoleSettings(services.RoleSettingsInfo{CanViewAllObjectives: []string{"hr"}})
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	owner, err := env.newUser("quietowner")
	if err != nil {
		t.Fatal(err)
	}
	privateId, err := owner.createObjective(map[string]interface{}{
		"title": "confidential", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	// a self-registered user asking for a privileged role gets employee
	c := env.newClient()
	login, err := c.signup("sneaky", "sneaky@mail.com", "password123", "hr")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.login(login); err != nil {
		t.Fatal(err)
	}

	info, err := c.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != "employee" {
		t.Fatalf("self-registered role should be employee, got %v", info.Role)
	}

	if _, err := c.getObjective(privateId); err == nil {
		t.Fatal("self-registered user should not see a foreign private objective")
	}

	// the same role assigned by an admin is honored
	hr, err := env.newUserWithRole("hrperson", "hr")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hr.getObjective(privateId); err != nil {
		t.Fatal(err)
	}
}

func TestDuplicateSignupRejected(t *testing.T) {
	env := setupTestEnv(t)

	if _, err := env.newUser("alice"); err != nil {
		t.Fatal(err)
	}

	c := env.newClient()
	if _, err := c.signup("alice", "other@mail.com", "password123", ""); err == nil {
		t.Fatal("duplicate username should be rejected")
	}
	if _, err := c.signup("alice2", "alice@mail.com", "password123", ""); err == nil {
		t.Fatal("duplicate email should be rejected")
	}
}

func TestPromoteDemoteAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.promoteAdmin(user.userId); !errors.Is(err, ErrForbidden) {
		t.Fatal("regular users cannot promote admins")
	}

	if err := admin.promoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	info, err := user.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if !info.Admin {
		t.Fatal("user should be an admin after promotion")
	}

	if err := admin.demoteAdmin(user.userId); err != nil {
		t.Fatal(err)
	}

	info, err = user.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Admin {
		t.Fatal("user should not be an admin after demotion")
	}
}

func TestCannotDemoteLastAdmin(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	info, err := admin.userInfo()
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.demoteAdmin(info.Id.String()); err == nil {
		t.Fatal("demoting the last admin should be rejected")
	}
}

func TestSupervisorAssignment(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	manager, err := env.newUser("manager1")
	if err != nil {
		t.Fatal(err)
	}
	report, err := env.newUser("report1")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.setSupervisor(report.userId, manager.userId); err != nil {
		t.Fatal(err)
	}

	if err := admin.setSupervisor(report.userId, report.userId); err == nil {
		t.Fatal("users cannot supervise themselves")
	}

	// the chain manager -> report exists, closing it into a loop is rejected
	if err := admin.setSupervisor(manager.userId, report.userId); err == nil {
		t.Fatal("supervisor loops should be rejected")
	}

	info, err := report.userInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.SupervisorId == nil || info.SupervisorId.String() != manager.userId {
		t.Fatal("supervisor not recorded")
	}
}

func TestDeleteUserReassignsObjectives(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("leaver")
	if err != nil {
		t.Fatal(err)
	}

	cycleId, err := admin.createCycle("Q1", quarterStart(), quarterEnd())
	if err != nil {
		t.Fatal(err)
	}

	objectiveId, err := user.createObjective(map[string]interface{}{
		"title": "stays behind", "cycle_id": cycleId,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.deleteUser(user.userId); err != nil {
		t.Fatal(err)
	}

	objectives, err := admin.listObjectives()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, o := range objectives {
		if o.Id.String() == objectiveId {
			found = true
			if o.OwnerId.String() == user.userId {
				t.Fatal("objective should be reassigned away from the deleted user")
			}
		}
	}
	if !found {
		t.Fatal("objective should survive its owner's deletion")
	}
}

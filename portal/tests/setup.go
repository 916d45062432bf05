package tests

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"engagehub/mailer"
	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/portal/services"
	"engagehub/portal/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	portal   services.Portal
	api      chi.Router
	storage  storage.Storage
	db       *gorm.DB
	dispatch *dispatchStub
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

// dispatchStub replaces the AI dispatch service in tests.
type dispatchStub struct {
	response string
	err      error
	prompts  []services.GenerationArgs
}

func (d *dispatchStub) Generate(ctx context.Context, args services.GenerationArgs) (string, error) {
	d.prompts = append(d.prompts, args)
	if d.err != nil {
		return "", d.err
	}
	return d.response, nil
}

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.BusinessUnit{}, &schema.UserUnit{},
		&schema.OkrCycle{}, &schema.Objective{}, &schema.KeyResult{},
		&schema.ObjectiveAlignment{}, &schema.OkrRoleSettings{},
		&schema.SurveyCampaign{}, &schema.SurveyQuestion{}, &schema.SurveyResponse{},
		&schema.LiveSession{}, &schema.LivePoll{}, &schema.LivePollOption{}, &schema.LiveVote{},
		&schema.FeedbackEntry{},
	)
	if err != nil {
		t.Fatal(err)
	}

	tmpDir := t.TempDir()
	storagePath := filepath.Join(tmpDir, "storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        secret,
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	dispatch := &dispatchStub{response: "stub insight"}
	mail := mailer.NewClient("", "", "noreply@engagehub.test")

	portal := services.NewPortal(db, store, userAuth, dispatch, mail, "")

	return &testEnv{portal: portal, api: portal.Routes(), storage: store, db: db, dispatch: dispatch}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password", "employee")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

// newUserWithRole provisions the user through the admin create endpoint,
// since self-signup never grants a role.
func (t *testEnv) newUserWithRole(username, role string) (client, error) {
	admin, err := t.adminClient()
	if err != nil {
		return client{}, err
	}

	login, err := admin.createUser(username, username+"@mail.com", username+"_password", role)
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

func quarterStart() time.Time {
	return time.Now().UTC().AddDate(0, 0, -7)
}

func quarterEnd() time.Time {
	return time.Now().UTC().AddDate(0, 0, 83)
}

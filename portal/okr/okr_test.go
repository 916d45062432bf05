package okr

import (
	"testing"
	"time"

	"engagehub/portal/schema"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.BusinessUnit{}, &schema.UserUnit{},
		&schema.OkrCycle{}, &schema.Objective{}, &schema.KeyResult{},
		&schema.ObjectiveAlignment{}, &schema.OkrRoleSettings{},
	)
	if err != nil {
		t.Fatal(err)
	}

	return db
}

func newTestUser(t *testing.T, db *gorm.DB, username, role string) schema.User {
	user := schema.User{
		Id:       uuid.New(),
		Username: username,
		Email:    username + "@mail.com",
		Password: []byte("not a real hash"),
		Role:     role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	return user
}

func newTestCycle(t *testing.T, db *gorm.DB) schema.OkrCycle {
	cycle := schema.OkrCycle{
		Id:        uuid.New(),
		Name:      "Q1",
		StartDate: time.Now().UTC(),
		EndDate:   time.Now().UTC().Add(90 * 24 * time.Hour),
		Status:    schema.CycleActive,
	}
	if err := db.Create(&cycle).Error; err != nil {
		t.Fatal(err)
	}
	return cycle
}

func newTestObjective(t *testing.T, db *gorm.DB, owner schema.User, cycle schema.OkrCycle, parent *uuid.UUID) schema.Objective {
	objective := schema.Objective{
		Id:                uuid.New(),
		Title:             "objective " + uuid.NewString()[:8],
		CycleId:           cycle.Id,
		OwnerId:           owner.Id,
		Status:            schema.Draft,
		Visibility:        schema.Private,
		ApprovalStatus:    schema.ApprovalPending,
		CalcMethod:        schema.WeightedSum,
		ParentObjectiveId: parent,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	if err := db.Create(&objective).Error; err != nil {
		t.Fatal(err)
	}
	return objective
}

func newTestKeyResult(t *testing.T, db *gorm.DB, objective schema.Objective, progress float64, status string) schema.KeyResult {
	kr := schema.KeyResult{
		Id:              uuid.New(),
		ObjectiveId:     objective.Id,
		OwnerId:         objective.OwnerId,
		Title:           "kr " + uuid.NewString()[:8],
		MeasurementType: schema.MeasureNumeric,
		StartValue:      0,
		CurrentValue:    progress,
		TargetValue:     100,
		Weight:          1,
		Status:          status,
		Progress:        progress,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := db.Create(&kr).Error; err != nil {
		t.Fatal(err)
	}
	return kr
}

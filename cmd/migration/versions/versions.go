package versions

import (
	"log"

	"engagehub/portal/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func initialTables() []interface{} {
	return []interface{}{
		&schema.User{}, &schema.BusinessUnit{}, &schema.UserUnit{},
		&schema.OkrCycle{}, &schema.Objective{}, &schema.KeyResult{},
		&schema.ObjectiveAlignment{}, &schema.OkrRoleSettings{},
		&schema.SurveyCampaign{}, &schema.SurveyQuestion{}, &schema.SurveyResponse{},
		&schema.LiveSession{}, &schema.LivePoll{}, &schema.LivePollOption{}, &schema.LiveVote{},
		&schema.FeedbackEntry{},
	}
}

func initialMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "0_initial",
		Migrate: func(txn *gorm.DB) error {
			log.Println("creating initial tables")
			return txn.AutoMigrate(initialTables()...)
		},
		Rollback: func(txn *gorm.DB) error {
			for _, table := range initialTables() {
				if err := txn.Migrator().DropTable(table); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// Migrations returns all migrations in order. New migrations are appended
// here, never inserted or reordered.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		initialMigration(),
	}
}

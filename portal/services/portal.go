package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"engagehub/mailer"
	"engagehub/portal/auth"
	"engagehub/portal/okr"
	"engagehub/portal/schema"
	"engagehub/portal/storage"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	objectiveListMetric  = promauto.NewSummary(prometheus.SummaryOpts{Name: "okr_objective_list", Help: "Objective listings"})
	progressWriteMetric  = promauto.NewSummary(prometheus.SummaryOpts{Name: "okr_progress_write", Help: "Key result progress writes"})
	surveySubmitMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "survey_response_submit", Help: "Survey response submissions"})
	liveVoteMetric       = promauto.NewSummary(prometheus.SummaryOpts{Name: "live_vote_cast", Help: "Live poll votes"})
	insightRequestMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "insight_generation", Help: "AI insight requests"})
)

type Portal struct {
	user      UserService
	unit      UnitService
	objective ObjectiveService
	keyResult KeyResultService
	cycle     CycleService
	admin     AdminService
	survey    SurveyService
	session   SessionService
	insights  InsightsService

	db   *gorm.DB
	stop chan bool
}

func NewPortal(
	db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, dispatch Dispatcher, mail *mailer.Client, roleDefaultsPath string,
) Portal {
	reconciler := okr.NewStatusReconciler(db)

	return Portal{
		user: UserService{db: db, userAuth: userAuth},
		unit: UnitService{db: db, userAuth: userAuth},
		objective: ObjectiveService{
			db:       db,
			userAuth: userAuth,
			storage:  store,
		},
		keyResult: KeyResultService{
			db:         db,
			userAuth:   userAuth,
			reconciler: reconciler,
		},
		cycle: CycleService{db: db, userAuth: userAuth},
		admin: AdminService{db: db, userAuth: userAuth, roleDefaultsPath: roleDefaultsPath},
		survey: SurveyService{
			db:       db,
			userAuth: userAuth,
			storage:  store,
		},
		session: SessionService{db: db, userAuth: userAuth},
		insights: InsightsService{
			db:       db,
			userAuth: userAuth,
			dispatch: dispatch,
			mailer:   mail,
		},
		db:   db,
		stop: make(chan bool, 1),
	}
}

func (p *Portal) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/unit", p.unit.Routes())
	r.Mount("/objective", p.objective.Routes())
	r.Mount("/keyresult", p.keyResult.Routes())
	r.Mount("/cycle", p.cycle.Routes())
	r.Mount("/admin", p.admin.Routes())
	r.Mount("/survey", p.survey.Routes())
	r.Mount("/session", p.session.Routes())
	r.Mount("/insights", p.insights.Routes())

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

// cycleSync closes out active cycles whose end date has passed. The status
// update is conditioned on the current status so a concurrent archive wins.
func (p *Portal) cycleSync() {
	var cycles []schema.OkrCycle

	result := p.db.
		Where("status = ?", schema.CycleActive).
		Where("end_date < ?", time.Now().UTC()).
		Find(&cycles)

	if result.Error != nil {
		slog.Error("cycle sync: sql error querying expired cycles", "error", result.Error)
		return
	}

	for _, cycle := range cycles {
		update := p.db.Model(&cycle).
			Where("status = ?", schema.CycleActive).
			Update("status", schema.CycleCompleted)
		if update.Error != nil {
			slog.Error("cycle sync: sql error completing expired cycle", "cycle_id", cycle.Id, "error", update.Error)
			continue
		}
		if update.RowsAffected > 0 {
			slog.Info("cycle sync: completed expired cycle", "cycle_id", cycle.Id)
		}
	}
}

func (p *Portal) CycleStatusSync(interval time.Duration) {
	slog.Info("cycle sync: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cycleSync()
		case <-p.stop:
			slog.Info("cycle sync: process stopped")
			return
		}
	}
}

func (p *Portal) StopCycleStatusSync() {
	close(p.stop)
}

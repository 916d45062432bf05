package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"engagehub/mailer"
	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GenerationArgs is a single completion request forwarded to the dispatch
// service.
type GenerationArgs struct {
	Prompt       string
	SystemPrompt string
}

// Dispatcher abstracts the AI dispatch service so tests can stub it out.
type Dispatcher interface {
	Generate(ctx context.Context, args GenerationArgs) (string, error)
}

type InsightsService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	dispatch Dispatcher
	mailer   *mailer.Client
}

func (s *InsightsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/feedback", s.SubmitFeedback)
	r.Get("/feedback/{user_id}", s.ListFeedback)

	r.Post("/analyze/{user_id}", s.AnalyzeFeedback)
	r.Post("/scenario", s.GenerateScenario)

	r.With(httprate.LimitByIP(5, time.Minute)).Post("/contact", s.Contact)

	return r
}

type submitFeedbackRequest struct {
	ReporteeId uuid.UUID `json:"reportee_id"`
	Category   string    `json:"category"`
	Text       string    `json:"text"`
}

type submitFeedbackResponse struct {
	FeedbackId uuid.UUID `json:"feedback_id"`
}

func (s *InsightsService) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params submitFeedbackRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Text == "" {
		http.Error(w, "Feedback text must be specified", http.StatusBadRequest)
		return
	}
	switch params.Category {
	case schema.FeedbackPeer, schema.FeedbackManager, schema.FeedbackSelf:
	default:
		http.Error(w, fmt.Sprintf("invalid feedback category %v", params.Category), http.StatusBadRequest)
		return
	}
	if params.Category == schema.FeedbackSelf && params.ReporteeId != user.Id {
		http.Error(w, "self feedback must target the author", http.StatusBadRequest)
		return
	}

	entry := schema.FeedbackEntry{
		Id:         uuid.New(),
		ReporteeId: params.ReporteeId,
		AuthorId:   user.Id,
		Category:   params.Category,
		Text:       params.Text,
		CreatedAt:  time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, params.ReporteeId); err != nil {
			return err
		}

		result := txn.Create(&entry)
		if result.Error != nil {
			slog.Error("sql error creating feedback entry", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting feedback: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, submitFeedbackResponse{FeedbackId: entry.Id})
}

// checkFeedbackAccess allows the reportee themselves, anyone above them in
// the supervisor chain, and admins.
func (s *InsightsService) checkFeedbackAccess(user schema.User, reporteeId uuid.UUID) error {
	if user.IsAdmin || user.Id == reporteeId {
		return nil
	}

	supervises, err := auth.SupervisorOf(user.Id, reporteeId, s.db)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}
	if !supervises {
		return CodedError(fmt.Errorf("user does not have access to this feedback"), http.StatusForbidden)
	}
	return nil
}

func (s *InsightsService) loadFeedback(reporteeId uuid.UUID) ([]schema.FeedbackEntry, error) {
	var entries []schema.FeedbackEntry
	result := s.db.Order("created_at").Find(&entries, "reportee_id = ?", reporteeId)
	if result.Error != nil {
		slog.Error("sql error loading feedback entries", "reportee_id", reporteeId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return entries, nil
}

func (s *InsightsService) ListFeedback(w http.ResponseWriter, r *http.Request) {
	reporteeId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := s.checkFeedbackAccess(user, reporteeId); err != nil {
		http.Error(w, fmt.Sprintf("error listing feedback: %v", err), GetResponseCode(err))
		return
	}

	entries, err := s.loadFeedback(reporteeId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing feedback: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, entries)
}

const analyzeSystemPrompt = "You are an HR assistant. Summarize the strengths, growth areas, and recurring " +
	"themes in the following feedback about an employee. Be constructive and do not identify the feedback authors."

type analysisResponse struct {
	ReporteeId uuid.UUID `json:"reportee_id"`
	Entries    int       `json:"entries"`
	Summary    string    `json:"summary"`
}

func (s *InsightsService) AnalyzeFeedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { insightRequestMetric.Observe(time.Since(start).Seconds()) }()

	reporteeId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := s.checkFeedbackAccess(user, reporteeId); err != nil {
		http.Error(w, fmt.Sprintf("error analyzing feedback: %v", err), GetResponseCode(err))
		return
	}

	entries, err := s.loadFeedback(reporteeId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error analyzing feedback: %v", err), http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "no feedback recorded for this user", http.StatusNotFound)
		return
	}

	var prompt strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&prompt, "[%s] %s\n", entry.Category, entry.Text)
	}

	summary, err := s.dispatch.Generate(r.Context(), GenerationArgs{
		Prompt:       prompt.String(),
		SystemPrompt: analyzeSystemPrompt,
	})
	if err != nil {
		slog.Error("error generating feedback analysis", "reportee_id", reporteeId, "error", err)
		http.Error(w, fmt.Sprintf("error analyzing feedback: %v", err), http.StatusBadGateway)
		return
	}

	utils.WriteJsonResponse(w, analysisResponse{ReporteeId: reporteeId, Entries: len(entries), Summary: summary})
}

const scenarioSystemPrompt = "You are an HR coach. Write a short role play scenario a manager can use to " +
	"practice the conversation described below. Include the setting and the other party's opening line."

type scenarioRequest struct {
	Topic string `json:"topic"`
}

type scenarioResponse struct {
	Scenario string `json:"scenario"`
}

func (s *InsightsService) GenerateScenario(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { insightRequestMetric.Observe(time.Since(start).Seconds()) }()

	var params scenarioRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Topic == "" {
		http.Error(w, "Scenario topic must be specified", http.StatusBadRequest)
		return
	}

	scenario, err := s.dispatch.Generate(r.Context(), GenerationArgs{
		Prompt:       params.Topic,
		SystemPrompt: scenarioSystemPrompt,
	})
	if err != nil {
		slog.Error("error generating scenario", "error", err)
		http.Error(w, fmt.Sprintf("error generating scenario: %v", err), http.StatusBadGateway)
		return
	}

	utils.WriteJsonResponse(w, scenarioResponse{Scenario: scenario})
}

type contactRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (s *InsightsService) Contact(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params contactRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Recipient == "" || params.Subject == "" || params.Body == "" {
		http.Error(w, "Recipient, subject, and body must be specified", http.StatusBadRequest)
		return
	}

	body := fmt.Sprintf("Message from %v (%v):\n\n%v", user.Username, user.Email, params.Body)
	if err := s.mailer.Send(r.Context(), params.Recipient, params.Subject, body); err != nil {
		slog.Error("error sending contact email", "error", err)
		http.Error(w, fmt.Sprintf("error sending email: %v", err), http.StatusBadGateway)
		return
	}

	utils.WriteSuccess(w)
}

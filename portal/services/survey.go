package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/portal/storage"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SurveyService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	storage  storage.Storage
}

func (s *SurveyService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.AdminOnly(s.db)).Post("/create", s.Create)
	r.Get("/list", s.List)

	r.Route("/{campaign_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Post("/respond", s.Respond)

		r.Group(func(r chi.Router) {
			r.Use(auth.AdminOnly(s.db))

			r.Post("/open", s.Open)
			r.Post("/close", s.Close)
			r.Delete("/", s.Delete)
			r.Get("/results", s.Results)
			r.With(checkSufficientStorage(s.storage)).Post("/export", s.Export)
		})
	})

	return r
}

type surveyQuestionRequest struct {
	Prompt string `json:"prompt"`
	Kind   string `json:"kind"`
}

type createCampaignRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Anonymous   bool                    `json:"anonymous"`
	StartDate   time.Time               `json:"start_date"`
	EndDate     time.Time               `json:"end_date"`
	Questions   []surveyQuestionRequest `json:"questions"`
}

type createCampaignResponse struct {
	CampaignId uuid.UUID `json:"campaign_id"`
}

func (s *SurveyService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createCampaignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "Campaign name must be specified", http.StatusBadRequest)
		return
	}
	if len(params.Questions) == 0 {
		http.Error(w, "Campaign must have at least one question", http.StatusBadRequest)
		return
	}
	for _, question := range params.Questions {
		if question.Prompt == "" {
			http.Error(w, "Question prompt cannot be empty", http.StatusBadRequest)
			return
		}
		if question.Kind != schema.QuestionRating && question.Kind != schema.QuestionText {
			http.Error(w, fmt.Sprintf("invalid question kind %v", question.Kind), http.StatusBadRequest)
			return
		}
	}

	campaign := schema.SurveyCampaign{
		Id:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Status:      schema.SurveyDraft,
		Anonymous:   params.Anonymous,
		CreatedBy:   user.Id,
		StartDate:   params.StartDate,
		EndDate:     params.EndDate,
		CreatedAt:   time.Now().UTC(),
	}
	for i, question := range params.Questions {
		campaign.Questions = append(campaign.Questions, schema.SurveyQuestion{
			Id:         uuid.New(),
			CampaignId: campaign.Id,
			Prompt:     question.Prompt,
			Kind:       question.Kind,
			Position:   i,
		})
	}

	result := s.db.Create(&campaign)
	if result.Error != nil {
		slog.Error("sql error creating survey campaign", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating campaign: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, createCampaignResponse{CampaignId: campaign.Id})
}

type CampaignInfo struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Anonymous   bool      `json:"anonymous"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

func (s *SurveyService) List(w http.ResponseWriter, r *http.Request) {
	var campaigns []schema.SurveyCampaign
	result := s.db.Order("created_at desc").Find(&campaigns)
	if result.Error != nil {
		slog.Error("sql error listing survey campaigns", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing campaigns: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CampaignInfo, 0, len(campaigns))
	for _, campaign := range campaigns {
		infos = append(infos, CampaignInfo{
			Id:          campaign.Id,
			Name:        campaign.Name,
			Description: campaign.Description,
			Status:      campaign.Status,
			Anonymous:   campaign.Anonymous,
			StartDate:   campaign.StartDate,
			EndDate:     campaign.EndDate,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *SurveyService) Get(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := schema.GetCampaign(campaignId, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading campaign: %v", err), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, campaign)
}

func (s *SurveyService) setStatus(w http.ResponseWriter, r *http.Request, from, to string) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}
		if campaign.Status != from {
			return CodedError(fmt.Errorf("campaign is %v, expected %v", campaign.Status, from), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.SurveyCampaign{Id: campaignId}).Update("status", to)
		if result.Error != nil {
			slog.Error("sql error updating campaign status", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *SurveyService) Open(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, schema.SurveyDraft, schema.SurveyOpen)
}

func (s *SurveyService) Close(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, schema.SurveyOpen, schema.SurveyClosed)
}

func (s *SurveyService) Delete(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := schema.GetCampaign(campaignId, txn, false); err != nil {
			return CodedError(err, http.StatusNotFound)
		}

		result := txn.Delete(&schema.SurveyResponse{}, "campaign_id = ?", campaignId)
		if result.Error != nil {
			slog.Error("sql error deleting survey responses", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.SurveyQuestion{}, "campaign_id = ?", campaignId)
		if result.Error != nil {
			slog.Error("sql error deleting survey questions", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.SurveyCampaign{Id: campaignId})
		if result.Error != nil {
			slog.Error("sql error deleting survey campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type surveyAnswer struct {
	QuestionId uuid.UUID `json:"question_id"`
	Rating     *int      `json:"rating,omitempty"`
	Text       string    `json:"text,omitempty"`
}

type respondRequest struct {
	Answers []surveyAnswer `json:"answers"`
}

func (s *SurveyService) Respond(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { surveySubmitMetric.Observe(time.Since(start).Seconds()) }()

	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params respondRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.Answers) == 0 {
		http.Error(w, "Response must contain at least one answer", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, true)
		if err != nil {
			return CodedError(err, http.StatusNotFound)
		}
		if campaign.Status != schema.SurveyOpen {
			return CodedError(fmt.Errorf("campaign is not open for responses"), http.StatusUnprocessableEntity)
		}

		var existing int64
		result := txn.Model(&schema.SurveyResponse{}).
			Where("campaign_id = ? AND user_id = ?", campaignId, user.Id).
			Count(&existing)
		if result.Error != nil {
			slog.Error("sql error checking for existing response", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if existing != 0 {
			return CodedError(fmt.Errorf("user has already responded to this campaign"), http.StatusConflict)
		}

		questions := make(map[uuid.UUID]schema.SurveyQuestion, len(campaign.Questions))
		for _, question := range campaign.Questions {
			questions[question.Id] = question
		}

		now := time.Now().UTC()
		for _, answer := range params.Answers {
			question, ok := questions[answer.QuestionId]
			if !ok {
				return CodedError(fmt.Errorf("question %v is not part of this campaign", answer.QuestionId), http.StatusBadRequest)
			}

			response := schema.SurveyResponse{
				Id:          uuid.New(),
				CampaignId:  campaignId,
				QuestionId:  answer.QuestionId,
				UserId:      user.Id,
				SubmittedAt: now,
			}
			switch question.Kind {
			case schema.QuestionRating:
				if answer.Rating == nil || *answer.Rating < 1 || *answer.Rating > 5 {
					return CodedError(fmt.Errorf("rating questions take a rating between 1 and 5"), http.StatusBadRequest)
				}
				response.Rating = answer.Rating
			case schema.QuestionText:
				if answer.Text == "" {
					return CodedError(fmt.Errorf("text questions take a non empty answer"), http.StatusBadRequest)
				}
				response.Text = answer.Text
			}

			result := txn.Create(&response)
			if result.Error != nil {
				slog.Error("sql error creating survey response", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting response: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type QuestionResults struct {
	QuestionId  uuid.UUID `json:"question_id"`
	Prompt      string    `json:"prompt"`
	Kind        string    `json:"kind"`
	Responses   int       `json:"responses"`
	RatingAvg   float64   `json:"rating_avg,omitempty"`
	TextAnswers []string  `json:"text_answers,omitempty"`
}

type campaignResults struct {
	CampaignId uuid.UUID         `json:"campaign_id"`
	Questions  []QuestionResults `json:"questions"`
}

func (s *SurveyService) Results(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := schema.GetCampaign(campaignId, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading campaign: %v", err), http.StatusNotFound)
		return
	}

	var responses []schema.SurveyResponse
	result := s.db.Find(&responses, "campaign_id = ?", campaignId)
	if result.Error != nil {
		slog.Error("sql error loading survey responses", "campaign_id", campaignId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading results: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	byQuestion := make(map[uuid.UUID][]schema.SurveyResponse)
	for _, response := range responses {
		byQuestion[response.QuestionId] = append(byQuestion[response.QuestionId], response)
	}

	results := campaignResults{CampaignId: campaignId}
	for _, question := range campaign.Questions {
		answers := byQuestion[question.Id]
		questionResults := QuestionResults{
			QuestionId: question.Id,
			Prompt:     question.Prompt,
			Kind:       question.Kind,
			Responses:  len(answers),
		}
		switch question.Kind {
		case schema.QuestionRating:
			total := 0
			counted := 0
			for _, answer := range answers {
				if answer.Rating != nil {
					total += *answer.Rating
					counted++
				}
			}
			if counted > 0 {
				questionResults.RatingAvg = float64(total) / float64(counted)
			}
		case schema.QuestionText:
			for _, answer := range answers {
				questionResults.TextAnswers = append(questionResults.TextAnswers, answer.Text)
			}
		}
		results.Questions = append(results.Questions, questionResults)
	}

	utils.WriteJsonResponse(w, results)
}

func (s *SurveyService) Export(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := schema.GetCampaign(campaignId, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading campaign: %v", err), http.StatusNotFound)
		return
	}

	var responses []schema.SurveyResponse
	result := s.db.Order("submitted_at").Find(&responses, "campaign_id = ?", campaignId)
	if result.Error != nil {
		slog.Error("sql error loading survey responses for export", "campaign_id", campaignId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error exporting campaign: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	prompts := make(map[uuid.UUID]string, len(campaign.Questions))
	for _, question := range campaign.Questions {
		prompts[question.Id] = question.Prompt
	}

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)

	header := []string{"question", "rating", "text", "submitted_at"}
	if !campaign.Anonymous {
		header = append(header, "user_id")
	}
	if err := writer.Write(header); err != nil {
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}

	for _, response := range responses {
		rating := ""
		if response.Rating != nil {
			rating = strconv.Itoa(*response.Rating)
		}
		row := []string{prompts[response.QuestionId], rating, response.Text, response.SubmittedAt.Format(time.RFC3339)}
		if !campaign.Anonymous {
			row = append(row, response.UserId.String())
		}
		if err := writer.Write(row); err != nil {
			http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}

	path := storage.SurveyExportPath(campaignId)
	if err := s.storage.Write(path, &buffer); err != nil {
		slog.Error("error writing survey export", "campaign_id", campaignId, "error", err)
		http.Error(w, fmt.Sprintf("error writing export: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, exportResponse{Path: path})
}

package services

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"engagehub/portal/auth"
	"engagehub/portal/schema"
	"engagehub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *SessionService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.Create)
	r.Get("/join/{code}", s.Join)

	r.Route("/{session_id}", func(r chi.Router) {
		r.Get("/", s.Get)
		r.Post("/close", s.Close)

		r.Post("/polls", s.CreatePoll)

		r.Route("/polls/{poll_id}", func(r chi.Router) {
			r.Post("/open", s.OpenPoll)
			r.Post("/close", s.ClosePoll)
			r.Post("/vote", s.Vote)
			r.Get("/results", s.PollResults)
		})
	})

	return r
}

const joinCodeLength = 6

const joinCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateJoinCode() (string, error) {
	var builder strings.Builder
	for i := 0; i < joinCodeLength; i++ {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeCharset))))
		if err != nil {
			return "", fmt.Errorf("unable to generate join code: %w", err)
		}
		builder.WriteByte(joinCodeCharset[index.Int64()])
	}
	return builder.String(), nil
}

type createSessionRequest struct {
	Title string `json:"title"`
}

type createSessionResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	Code      string    `json:"code"`
}

func (s *SessionService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createSessionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "Session title must be specified", http.StatusBadRequest)
		return
	}

	code, err := generateJoinCode()
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating session: %v", err), http.StatusInternalServerError)
		return
	}

	session := schema.LiveSession{
		Id:        uuid.New(),
		Title:     params.Title,
		HostId:    user.Id,
		Code:      code,
		Status:    schema.SessionOpen,
		CreatedAt: time.Now().UTC(),
	}

	result := s.db.Create(&session)
	if result.Error != nil {
		slog.Error("sql error creating live session", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating session: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, createSessionResponse{SessionId: session.Id, Code: session.Code})
}

func (s *SessionService) Join(w http.ResponseWriter, r *http.Request) {
	code, err := utils.URLParam(r, "code")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code = strings.ToUpper(code)

	var session schema.LiveSession
	result := s.db.Preload("Polls.Options").Limit(1).Find(&session, "code = ?", code)
	if result.Error != nil {
		slog.Error("sql error looking up session by code", "error", result.Error)
		http.Error(w, fmt.Sprintf("error joining session: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, fmt.Sprintf("no session with code %v", code), http.StatusNotFound)
		return
	}
	if session.Status != schema.SessionOpen {
		http.Error(w, "session is closed", http.StatusUnprocessableEntity)
		return
	}

	utils.WriteJsonResponse(w, session)
}

func (s *SessionService) Get(w http.ResponseWriter, r *http.Request) {
	sessionId, err := utils.URLParamUUID(r, "session_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, err := schema.GetSession(sessionId, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading session: %v", err), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, session)
}

func (s *SessionService) checkHost(txn *gorm.DB, sessionId uuid.UUID, user schema.User) (schema.LiveSession, error) {
	session, err := schema.GetSession(sessionId, txn, false)
	if err != nil {
		return session, CodedError(err, http.StatusNotFound)
	}
	if session.HostId != user.Id && !user.IsAdmin {
		return session, CodedError(fmt.Errorf("only the session host can perform this action"), http.StatusForbidden)
	}
	return session, nil
}

func (s *SessionService) Close(w http.ResponseWriter, r *http.Request) {
	sessionId, err := utils.URLParamUUID(r, "session_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := s.checkHost(txn, sessionId, user); err != nil {
			return err
		}

		result := txn.Model(&schema.LiveSession{Id: sessionId}).Update("status", schema.SessionClosed)
		if result.Error != nil {
			slog.Error("sql error closing session", "session_id", sessionId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.LivePoll{}).Where("session_id = ?", sessionId).Update("open", false)
		if result.Error != nil {
			slog.Error("sql error closing session polls", "session_id", sessionId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error closing session: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type createPollRequest struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type createPollResponse struct {
	PollId uuid.UUID `json:"poll_id"`
}

func (s *SessionService) CreatePoll(w http.ResponseWriter, r *http.Request) {
	sessionId, err := utils.URLParamUUID(r, "session_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createPollRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Prompt == "" {
		http.Error(w, "Poll prompt must be specified", http.StatusBadRequest)
		return
	}
	if len(params.Options) < 2 {
		http.Error(w, "Poll must have at least two options", http.StatusBadRequest)
		return
	}

	poll := schema.LivePoll{Id: uuid.New(), SessionId: sessionId, Prompt: params.Prompt}
	for i, label := range params.Options {
		if label == "" {
			http.Error(w, "Poll option labels cannot be empty", http.StatusBadRequest)
			return
		}
		poll.Options = append(poll.Options, schema.LivePollOption{
			Id:       uuid.New(),
			PollId:   poll.Id,
			Label:    label,
			Position: i,
		})
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		session, err := s.checkHost(txn, sessionId, user)
		if err != nil {
			return err
		}
		if session.Status != schema.SessionOpen {
			return CodedError(fmt.Errorf("session is closed"), http.StatusUnprocessableEntity)
		}

		var count int64
		result := txn.Model(&schema.LivePoll{}).Where("session_id = ?", sessionId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting session polls", "session_id", sessionId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		poll.Position = int(count)

		result = txn.Create(&poll)
		if result.Error != nil {
			slog.Error("sql error creating poll", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating poll: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createPollResponse{PollId: poll.Id})
}

func (s *SessionService) setPollOpen(w http.ResponseWriter, r *http.Request, open bool) {
	sessionId, err := utils.URLParamUUID(r, "session_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pollId, err := utils.URLParamUUID(r, "poll_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		session, err := s.checkHost(txn, sessionId, user)
		if err != nil {
			return err
		}
		if open && session.Status != schema.SessionOpen {
			return CodedError(fmt.Errorf("session is closed"), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.LivePoll{}).
			Where("id = ? AND session_id = ?", pollId, sessionId).
			Update("open", open)
		if result.Error != nil {
			slog.Error("sql error updating poll state", "poll_id", pollId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("poll %v not found in session %v", pollId, sessionId), http.StatusNotFound)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating poll: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *SessionService) OpenPoll(w http.ResponseWriter, r *http.Request) {
	s.setPollOpen(w, r, true)
}

func (s *SessionService) ClosePoll(w http.ResponseWriter, r *http.Request) {
	s.setPollOpen(w, r, false)
}

type voteRequest struct {
	OptionId uuid.UUID `json:"option_id"`
}

func (s *SessionService) Vote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { liveVoteMetric.Observe(time.Since(start).Seconds()) }()

	pollId, err := utils.URLParamUUID(r, "poll_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params voteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var poll schema.LivePoll
		result := txn.Limit(1).Find(&poll, "id = ?", pollId)
		if result.Error != nil {
			slog.Error("sql error loading poll", "poll_id", pollId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("poll %v not found", pollId), http.StatusNotFound)
		}
		if !poll.Open {
			return CodedError(fmt.Errorf("poll is not open for voting"), http.StatusUnprocessableEntity)
		}

		var option schema.LivePollOption
		result = txn.Limit(1).Find(&option, "id = ? AND poll_id = ?", params.OptionId, pollId)
		if result.Error != nil {
			slog.Error("sql error loading poll option", "option_id", params.OptionId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("option %v is not part of this poll", params.OptionId), http.StatusBadRequest)
		}

		// last vote wins, revoting just moves the ballot
		vote := schema.LiveVote{PollId: pollId, UserId: user.Id, OptionId: params.OptionId, CastAt: time.Now().UTC()}

		result = txn.Model(&schema.LiveVote{}).
			Where("poll_id = ? AND user_id = ?", pollId, user.Id).
			Updates(map[string]interface{}{"option_id": vote.OptionId, "cast_at": vote.CastAt})
		if result.Error != nil {
			slog.Error("sql error updating vote", "poll_id", pollId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			result = txn.Create(&vote)
			if result.Error != nil {
				slog.Error("sql error casting vote", "poll_id", pollId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error casting vote: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type OptionCount struct {
	OptionId uuid.UUID `json:"option_id"`
	Label    string    `json:"label"`
	Votes    int64     `json:"votes"`
}

type pollResults struct {
	PollId  uuid.UUID     `json:"poll_id"`
	Prompt  string        `json:"prompt"`
	Open    bool          `json:"open"`
	Total   int64         `json:"total"`
	Options []OptionCount `json:"options"`
}

func (s *SessionService) PollResults(w http.ResponseWriter, r *http.Request) {
	pollId, err := utils.URLParamUUID(r, "poll_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var poll schema.LivePoll
	result := s.db.Preload("Options").Limit(1).Find(&poll, "id = ?", pollId)
	if result.Error != nil {
		slog.Error("sql error loading poll results", "poll_id", pollId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading results: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, fmt.Sprintf("poll %v not found", pollId), http.StatusNotFound)
		return
	}

	var votes []schema.LiveVote
	result = s.db.Find(&votes, "poll_id = ?", pollId)
	if result.Error != nil {
		slog.Error("sql error loading poll votes", "poll_id", pollId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading results: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	counts := make(map[uuid.UUID]int64)
	for _, vote := range votes {
		counts[vote.OptionId]++
	}

	results := pollResults{PollId: poll.Id, Prompt: poll.Prompt, Open: poll.Open, Total: int64(len(votes))}
	for _, option := range poll.Options {
		results.Options = append(results.Options, OptionCount{
			OptionId: option.Id,
			Label:    option.Label,
			Votes:    counts[option.Id],
		})
	}

	utils.WriteJsonResponse(w, results)
}

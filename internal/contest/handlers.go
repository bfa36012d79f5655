package contest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"exam-prep-platform/internal/auth"
	"exam-prep-platform/pkg/telemetry"
)

// LifecycleScheduler schedules contest status transitions; implemented by
// the asynq-backed scheduler client.
type LifecycleScheduler interface {
	ScheduleLifecycle(contestID string, startsAt, endsAt time.Time) error
}

// Handlers exposes the contest HTTP surface.
type Handlers struct {
	repo      *Repo
	queue     *Queue
	scheduler LifecycleScheduler
	metrics   *telemetry.Metrics
}

// NewHandlers wires the contest handlers.
func NewHandlers(repo *Repo, queue *Queue, scheduler LifecycleScheduler, metrics *telemetry.Metrics) *Handlers {
	return &Handlers{repo: repo, queue: queue, scheduler: scheduler, metrics: metrics}
}

// Routes mounts the contest endpoints. authorizer guards every route; admin
// routes additionally require the admin role.
func (h *Handlers) Routes(r chi.Router, authorizer *auth.Authorizer) {
	r.Group(func(r chi.Router) {
		r.Use(authorizer.Middleware)

		r.With(authorizer.RequireAdmin).Post("/questions", h.createQuestion)
		r.With(authorizer.RequireAdmin).Post("/contests", h.createContest)
		r.Get("/contests/{id}", h.getContest)
		r.Post("/contests/{id}/submit", h.submit)
	})
}

func (h *Handlers) createQuestion(w http.ResponseWriter, r *http.Request) {
	var q Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "malformed question payload")
		return
	}
	if err := validateQuestion(&q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.CreateQuestion(r.Context(), &q); err != nil {
		log.Printf("Failed to create question: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create question")
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type createContestRequest struct {
	Name        string    `json:"name"`
	TotalTime   int       `json:"total_time"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	QuestionIDs []string  `json:"question_ids"`
}

func (h *Handlers) createContest(w http.ResponseWriter, r *http.Request) {
	var req createContestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "malformed contest payload")
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		writeError(w, http.StatusBadRequest, "ends_at must be after starts_at")
		return
	}

	c := &Contest{
		Name:        req.Name,
		TotalTime:   req.TotalTime,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		QuestionIDs: req.QuestionIDs,
	}
	if err := h.repo.CreateContest(r.Context(), c); err != nil {
		log.Printf("Failed to create contest: %v", err)
		writeError(w, http.StatusInternalServerError, "could not create contest")
		return
	}

	if h.scheduler != nil {
		if err := h.scheduler.ScheduleLifecycle(c.ID, c.StartsAt, c.EndsAt); err != nil {
			// The contest exists; lifecycle can be driven manually if
			// scheduling fails.
			log.Printf("Failed to schedule lifecycle for contest %s: %v", c.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) getContest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid contest id")
		return
	}

	c, err := h.repo.GetContest(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrContestNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		log.Printf("Failed to load contest %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load contest")
		return
	}

	questions, err := h.repo.GetContestQuestions(r.Context(), id)
	if err != nil {
		log.Printf("Failed to load questions for contest %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "could not load contest")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contest":   c,
		"questions": questions,
	})
}

type submitRequest struct {
	Submissions []Submission `json:"submissions"`
}

// submit enqueues the caller's batch onto the contest's submission queue and
// returns 202: queued for evaluation, not graded.
func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.CodeUnauthorized)
		return
	}

	contestID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(contestID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid contest id")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Submissions) == 0 {
		writeError(w, http.StatusBadRequest, "submissions are required")
		return
	}

	contest, err := h.repo.GetContest(r.Context(), contestID)
	if err != nil {
		if errors.Is(err, ErrContestNotFound) {
			writeError(w, http.StatusNotFound, "contest not found")
			return
		}
		log.Printf("Failed to load contest %s: %v", contestID, err)
		writeError(w, http.StatusInternalServerError, "could not load contest")
		return
	}
	if contest.Status != StatusActive {
		writeError(w, http.StatusConflict, "contest is not active")
		return
	}

	batch := &Batch{
		ContestID:   contestID,
		UserID:      user.ID,
		Submissions: req.Submissions,
	}
	if err := h.queue.Enqueue(r.Context(), batch); err != nil {
		log.Printf("Failed to enqueue batch for user %s contest %s: %v", user.ID, contestID, err)
		writeError(w, http.StatusInternalServerError, "could not queue submissions")
		return
	}

	if h.metrics != nil {
		h.metrics.SubmissionsQueued.Inc()
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func validateQuestion(q *Question) error {
	if q.Marks <= 0 {
		return errors.New("marks must be positive")
	}
	switch q.Type {
	case TypeInteger:
		if q.IntegerAnswer == nil {
			return errors.New("integer_answer is required for INTEGER questions")
		}
	case TypeMCQ, TypeMatch:
		if len(q.MCQOptions) == 0 || len(q.MCQCorrectOption) == 0 {
			return errors.New("mcq_options and mcq_correct_option are required")
		}
		for _, idx := range q.MCQCorrectOption {
			if idx < 0 || idx >= len(q.MCQOptions) {
				return errors.New("mcq_correct_option index out of bounds")
			}
		}
	case TypeSCQ:
		if len(q.SCQOptions) == 0 || q.SCQCorrectOption == nil {
			return errors.New("scq_options and scq_correct_option are required")
		}
		if *q.SCQCorrectOption < 0 || *q.SCQCorrectOption >= len(q.SCQOptions) {
			return errors.New("scq_correct_option index out of bounds")
		}
	default:
		return errors.New("unknown question type")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Package scheduler drives contest lifecycle transitions through asynq
// scheduled tasks: one task activates the contest at starts_at, another
// finishes it at ends_at. Transitions are guarded by the expected current
// status, so duplicate task delivery is harmless.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"exam-prep-platform/internal/contest"
)

const (
	TaskContestActivate = "contest:activate"
	TaskContestFinish   = "contest:finish"
)

type lifecyclePayload struct {
	ContestID string `json:"contest_id"`
}

// Client schedules lifecycle tasks; used by the contest-create handler.
type Client struct {
	client *asynq.Client
}

// NewClient creates a scheduler client against the shared Redis.
func NewClient(redisURL string) (*Client, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL for scheduler: %w", err)
	}
	return &Client{client: asynq.NewClient(opts)}, nil
}

// Close releases the underlying asynq client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ScheduleLifecycle enqueues the activate and finish tasks for one contest.
func (c *Client) ScheduleLifecycle(contestID string, startsAt, endsAt time.Time) error {
	payload, err := json.Marshal(lifecyclePayload{ContestID: contestID})
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle payload: %w", err)
	}

	_, err = c.client.Enqueue(
		asynq.NewTask(TaskContestActivate, payload),
		asynq.ProcessAt(startsAt),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule activation: %w", err)
	}

	_, err = c.client.Enqueue(
		asynq.NewTask(TaskContestFinish, payload),
		asynq.ProcessAt(endsAt),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule finish: %w", err)
	}

	return nil
}

// Server consumes lifecycle tasks; runs inside the grading worker process.
type Server struct {
	server *asynq.Server
	repo   *contest.Repo
}

// NewServer creates the lifecycle task server.
func NewServer(redisURL string, repo *contest.Repo) (*Server, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL for scheduler: %w", err)
	}
	server := asynq.NewServer(opts, asynq.Config{
		Concurrency: 2,
	})
	return &Server{server: server, repo: repo}, nil
}

// Run serves lifecycle tasks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskContestActivate, s.handleActivate)
	mux.HandleFunc(TaskContestFinish, s.handleFinish)

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start lifecycle server: %w", err)
	}

	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

func (s *Server) handleActivate(ctx context.Context, task *asynq.Task) error {
	var payload lifecyclePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed activation payload: %w", err)
	}

	moved, err := s.repo.TransitionContestStatus(ctx, payload.ContestID, contest.StatusNotStarted, contest.StatusActive)
	if err != nil {
		return err
	}
	if moved {
		log.Printf("Contest %s activated", payload.ContestID)
	}
	return nil
}

func (s *Server) handleFinish(ctx context.Context, task *asynq.Task) error {
	var payload lifecyclePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("malformed finish payload: %w", err)
	}

	moved, err := s.repo.TransitionContestStatus(ctx, payload.ContestID, contest.StatusActive, contest.StatusFinished)
	if err != nil {
		return err
	}
	if moved {
		log.Printf("Contest %s finished", payload.ContestID)
	}
	return nil
}

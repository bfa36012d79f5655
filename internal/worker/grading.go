package worker

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"exam-prep-platform/internal/contest"
	"exam-prep-platform/internal/rating"
	"exam-prep-platform/pkg/kv"
	"exam-prep-platform/pkg/telemetry"
)

// GradingWorker recomputes ranks and ratings once every submission queue has
// stayed empty for the configured threshold. Contests are discovered from the
// grading handoff list (which survives a queue key being deleted on its last
// pop) and from live queue scans; the empty-threshold rule decides when
// grading runs, and duplicate runs are harmless because grading is idempotent.
type GradingWorker struct {
	repo    *contest.Repo
	queue   *contest.Queue
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	checkInterval  time.Duration
	emptyThreshold time.Duration

	// known accumulates every contest id discovered via handoff or scan.
	// graded tracks contests already handled in the current quiet window.
	known  map[string]bool
	graded map[string]bool

	emptySince time.Time

	// grade points at gradeContest; tests substitute it.
	grade func(ctx context.Context, contestID string) error
}

// NewGradingWorker creates the grading loop.
func NewGradingWorker(repo *contest.Repo, queue *contest.Queue, metrics *telemetry.Metrics, checkInterval, emptyThreshold time.Duration) *GradingWorker {
	w := &GradingWorker{
		repo:           repo,
		queue:          queue,
		metrics:        metrics,
		tracer:         otel.Tracer("exam-prep-platform/internal/worker"),
		checkInterval:  checkInterval,
		emptyThreshold: emptyThreshold,
		known:          make(map[string]bool),
		graded:         make(map[string]bool),
	}
	w.grade = w.gradeContest
	return w
}

// Run executes the grading loop until the context is cancelled.
func (w *GradingWorker) Run(ctx context.Context) {
	log.Println("Grading worker starting")
	for {
		if ctx.Err() != nil {
			log.Println("Grading worker shutting down")
			return
		}
		if err := w.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("Grading worker: iteration failed: %v", err)
		}
		sleepCtx(ctx, w.checkInterval)
	}
}

func (w *GradingWorker) iterate(ctx context.Context) error {
	// The handoff list must be drained first: a fully consumed queue's key is
	// gone from Redis, so the scan below can never rediscover that contest.
	drained, err := w.queue.DrainGrading(ctx)
	if err != nil {
		return err
	}
	for _, contestID := range drained {
		w.known[contestID] = true
		// A fresh handoff means the queue drained again since the last run.
		delete(w.graded, contestID)
	}

	active, lengths, err := w.queue.ActiveQueues(ctx)
	if err != nil {
		return err
	}

	for key := range lengths {
		if contestID := kv.ContestIDFromQueueKey(key); contestID != "" {
			w.known[contestID] = true
		}
	}

	if len(active) > 0 {
		// Submissions are flowing again: reset the quiet window and drop the
		// affected contests from graded so the new batches get ranked.
		w.emptySince = time.Time{}
		for _, key := range active {
			if contestID := kv.ContestIDFromQueueKey(key); contestID != "" {
				w.known[contestID] = true
				delete(w.graded, contestID)
			}
		}
		return nil
	}

	now := time.Now()
	if w.emptySince.IsZero() {
		w.emptySince = now
		return nil
	}
	if now.Sub(w.emptySince) < w.emptyThreshold {
		return nil
	}

	for contestID := range w.known {
		if w.graded[contestID] {
			continue
		}
		if err := w.grade(ctx, contestID); err != nil {
			// Left out of graded; re-attempted on the next quiet window.
			log.Printf("Grading worker: contest %s failed: %v", contestID, err)
			continue
		}
		w.graded[contestID] = true
		w.metrics.GradingRuns.Inc()

		if err := w.queue.PublishGraded(ctx, contestID); err != nil {
			log.Printf("Grading worker: graded event for %s failed: %v", contestID, err)
		}
	}

	return nil
}

// gradeContest assigns competition ranks by score and applies the damped
// Elo update to every participant in one transaction.
func (w *GradingWorker) gradeContest(ctx context.Context, contestID string) error {
	ctx, span := w.tracer.Start(ctx, "worker.grade_contest",
		trace.WithAttributes(attribute.String("contest.id", contestID)))
	defer span.End()

	rows, err := w.repo.Leaderboard(ctx, contestID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	scores := make([]int, len(rows))
	for i, row := range rows {
		scores[i] = row.Score
	}
	ranks := CompetitionRanks(scores)

	players := make([]rating.Player, len(rows))
	for i, row := range rows {
		played, err := w.repo.ContestsPlayed(ctx, row.UserID, contestID)
		if err != nil {
			return err
		}
		players[i] = rating.Player{
			UserID: row.UserID,
			// rating_before is the pre-contest rating captured by the
			// submission worker; grading from it keeps re-runs idempotent.
			Rating:         row.RatingBefore,
			Rank:           ranks[i],
			ContestsPlayed: played,
		}
	}

	updates := rating.Compute(players)

	results := make([]contest.RatingResult, len(rows))
	for i, row := range rows {
		results[i] = contest.RatingResult{
			RowID:        row.ID,
			UserID:       row.UserID,
			Rank:         ranks[i],
			RatingBefore: updates[i].RatingBefore,
			RatingAfter:  updates[i].RatingAfter,
			RatingDelta:  updates[i].Delta,
		}
	}

	if err := w.repo.ApplyRatings(ctx, contestID, results); err != nil {
		return err
	}

	w.metrics.RatingsUpdated.Add(float64(len(results)))
	log.Printf("Grading worker: contest %s graded, %d participants ranked", contestID, len(results))
	return nil
}

package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"exam-prep-platform/internal/contest"
	"exam-prep-platform/pkg/kv"
	"exam-prep-platform/pkg/telemetry"
)

// SubmissionWorker drains contest submission queues. Each loop iteration
// discovers non-empty queues, hands drained contests to the grading list,
// pops at most one batch, and commits its effects in one transaction.
type SubmissionWorker struct {
	id      int
	repo    *contest.Repo
	queue   *contest.Queue
	metrics *telemetry.Metrics
	tracer  trace.Tracer

	pollInterval    time.Duration
	blockingTimeout time.Duration

	// seen holds queue keys observed non-empty in previous iterations; a key
	// in seen that scans empty has drained and triggers the grading handoff.
	seen map[string]bool
}

// NewSubmissionWorker creates one worker loop.
func NewSubmissionWorker(id int, repo *contest.Repo, queue *contest.Queue, metrics *telemetry.Metrics, pollInterval, blockingTimeout time.Duration) *SubmissionWorker {
	return &SubmissionWorker{
		id:              id,
		repo:            repo,
		queue:           queue,
		metrics:         metrics,
		tracer:          otel.Tracer("exam-prep-platform/internal/worker"),
		pollInterval:    pollInterval,
		blockingTimeout: blockingTimeout,
		seen:            make(map[string]bool),
	}
}

// Run executes the worker loop until the context is cancelled. An in-flight
// batch always runs to completion; cancellation is observed between batches
// and bounded by the blocking pop timeout.
func (w *SubmissionWorker) Run(ctx context.Context) {
	log.Printf("Submission worker %d starting", w.id)
	for {
		if ctx.Err() != nil {
			log.Printf("Submission worker %d shutting down", w.id)
			return
		}
		if err := w.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("Submission worker %d: iteration failed: %v", w.id, err)
			sleepCtx(ctx, w.pollInterval*5)
		}
	}
}

func (w *SubmissionWorker) iterate(ctx context.Context) error {
	active, lengths, err := w.queue.ActiveQueues(ctx)
	if err != nil {
		return err
	}

	activeSet := make(map[string]bool, len(active))
	for _, key := range active {
		activeSet[key] = true
		w.seen[key] = true
	}
	for key, n := range lengths {
		w.metrics.QueueDepth.WithLabelValues(kv.ContestIDFromQueueKey(key)).Set(float64(n))
	}

	// Idle handoff: a previously non-empty queue scanning empty means its
	// contest has drained. Emit its id once and forget the queue.
	for key := range w.seen {
		if activeSet[key] {
			continue
		}
		contestID := kv.ContestIDFromQueueKey(key)
		if contestID != "" {
			if err := w.queue.EmitGrading(ctx, contestID); err != nil {
				log.Printf("Submission worker %d: grading handoff for %s failed: %v", w.id, contestID, err)
			} else {
				log.Printf("Submission worker %d: contest %s drained, emitted for grading", w.id, contestID)
			}
		}
		delete(w.seen, key)
	}

	if len(active) == 0 {
		sleepCtx(ctx, w.pollInterval*5)
		return nil
	}

	// Round-robin: pop from the active queues in order, stop after one
	// successful batch so other contests get a turn next iteration.
	for _, key := range active {
		batch, err := w.queue.Dequeue(ctx, key, w.blockingTimeout)
		if err != nil {
			if errors.Is(err, contest.ErrQueueEmpty) {
				sleepCtx(ctx, w.pollInterval)
				return nil
			}
			return err
		}

		w.processBatch(ctx, batch)
		break
	}

	return nil
}

// processBatch evaluates every submission in the batch, inserts attempts,
// and upserts the (user, contest) leaderboard row, all in one transaction.
// A failed batch is logged and dropped, never requeued.
func (w *SubmissionWorker) processBatch(ctx context.Context, batch *contest.Batch) {
	ctx, span := w.tracer.Start(ctx, "worker.process_batch",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("contest.id", batch.ContestID),
			attribute.Int("batch.size", len(batch.Submissions)),
		))
	defer span.End()

	start := time.Now()

	cont, err := w.repo.GetContest(ctx, batch.ContestID)
	if err != nil {
		log.Printf("Submission worker %d: abandoning batch for contest %s: %v", w.id, batch.ContestID, err)
		w.metrics.BatchesFailed.Inc()
		return
	}

	totalQuestions, err := w.repo.CountContestQuestions(ctx, cont.ID)
	if err != nil {
		log.Printf("Submission worker %d: abandoning batch for contest %s: %v", w.id, cont.ID, err)
		w.metrics.BatchesFailed.Inc()
		return
	}

	questionIDs := make([]string, 0, len(batch.Submissions))
	for _, sub := range batch.Submissions {
		questionIDs = append(questionIDs, sub.QuestionID)
	}
	questions, err := w.repo.GetQuestionsByIDs(ctx, questionIDs)
	if err != nil {
		log.Printf("Submission worker %d: abandoning batch for contest %s: %v", w.id, cont.ID, err)
		w.metrics.BatchesFailed.Inc()
		return
	}

	tx, err := w.repo.Begin(ctx)
	if err != nil {
		log.Printf("Submission worker %d: failed to begin transaction: %v", w.id, err)
		w.metrics.BatchesFailed.Inc()
		return
	}
	defer tx.Rollback(ctx)

	var totals batchTotals
	failed := 0

	for _, sub := range batch.Submissions {
		question, ok := questions[sub.QuestionID]
		if !ok {
			log.Printf("Submission worker %d: unknown question %s in batch for contest %s", w.id, sub.QuestionID, cont.ID)
			failed++
			w.metrics.EvaluationFailures.Inc()
			continue
		}

		result := contest.Evaluate(question, sub.UserAnswer)

		attempt := &contest.Attempt{
			UserID:        batch.UserID,
			QuestionID:    sub.QuestionID,
			UserAnswer:    sub.UserAnswer,
			IsCorrect:     result.IsCorrect,
			MarksObtained: result.Marks,
			TimeTaken:     sub.TimeTaken,
			HintUsed:      sub.HintUsed,
		}
		if err := w.repo.InsertAttempt(ctx, tx, attempt); err != nil {
			// A failed insert poisons the transaction; the whole batch is
			// dropped (at-most-once, clients re-submit).
			log.Printf("Submission worker %d: attempt insert failed, abandoning batch: %v", w.id, err)
			w.metrics.BatchesFailed.Inc()
			return
		}

		totals.add(result, sub.TimeTaken)
		w.metrics.AttemptsEvaluated.Inc()
	}

	if totals.Attempted > 0 {
		ratingBefore, err := w.repo.GetUserRating(ctx, tx, batch.UserID)
		if err != nil {
			log.Printf("Submission worker %d: abandoning batch for user %s: %v", w.id, batch.UserID, err)
			w.metrics.BatchesFailed.Inc()
			return
		}

		row := totals.leaderboardRow(batch.UserID, cont.ID, totalQuestions, ratingBefore)
		if err := w.repo.UpsertLeaderboardRow(ctx, tx, row); err != nil {
			log.Printf("Submission worker %d: leaderboard upsert failed: %v", w.id, err)
			w.metrics.BatchesFailed.Inc()
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Submission worker %d: commit failed: %v", w.id, err)
		w.metrics.BatchesFailed.Inc()
		return
	}

	w.metrics.BatchesProcessed.Inc()
	w.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		log.Printf("Submission worker %d: batch for user %s contest %s committed with %d dropped submissions", w.id, batch.UserID, cont.ID, failed)
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

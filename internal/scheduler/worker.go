package scheduler

import (
	"context"
	"time"

	"github.com/orgloop/engine/internal/metrics"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/observer"
)

// Start launches the queue's worker pool. ctx bounds both individual
// delivery attempts and, via cancellation, the workers' lifetime.
func (q *ActorQueue) Start(ctx context.Context) {
	q.ctx = ctx
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.runWorker()
	}
}

// Enqueue blocks until the job is accepted or ctx is cancelled, giving the
// per-actor queue the backpressure spec.md §4.7 requires: a full queue
// blocks the caller (the Route Matcher's dispatch path) rather than
// dropping the event.
func (q *ActorQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.queue <- job:
		metrics.ActorQueueDepth.WithLabelValues(q.actorID).Set(float64(len(q.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals workers to exit once they finish any in-flight delivery and
// waits up to the deadline on ctx.
func (q *ActorQueue) Stop(ctx context.Context) {
	close(q.stopCh)
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (q *ActorQueue) runWorker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.ctx.Done():
			return
		case job := <-q.queue:
			q.process(job)
		}
	}
}

func (q *ActorQueue) process(job Job) {
	job.Attempt++

	q.bus.Emit(observer.KindDeliveryAttempt, map[string]any{
		"event_id":       job.Event.ID,
		"route_name":     job.RouteName,
		"actor_id":       job.ActorID,
		"attempt_n":      job.Attempt,
		"correlation_id": job.CorrelationID,
	})

	deliverCtx, cancel := context.WithTimeout(q.ctx, q.deliverTimeout)
	if q.limiter != nil {
		if err := q.limiter.Wait(deliverCtx); err != nil {
			cancel()
			attempt := model.DeliveryAttempt{
				EventID: job.Event.ID, RouteName: job.RouteName, ActorID: job.ActorID,
				AttemptN: job.Attempt, CorrelationID: job.CorrelationID,
				Status: model.StatusError, Error: err.Error(),
			}
			q.handleRetryableFailure(job, attempt)
			return
		}
	}
	deliverStart := time.Now()
	result, err := q.actor.Deliver(deliverCtx, job.Event, job.Config)
	metrics.DeliveryDurationSeconds.WithLabelValues(q.actorID).Observe(time.Since(deliverStart).Seconds())
	cancel()

	attempt := model.DeliveryAttempt{
		EventID:       job.Event.ID,
		RouteName:     job.RouteName,
		ActorID:       job.ActorID,
		AttemptN:      job.Attempt,
		CorrelationID: job.CorrelationID,
	}

	switch {
	case err != nil:
		attempt.Status = model.StatusError
		attempt.Error = err.Error()
	default:
		attempt.Status = result.Status
		attempt.Error = result.Error
	}

	switch attempt.Status {
	case model.StatusDelivered:
		metrics.DeliveryAttemptsTotal.WithLabelValues(q.actorID, string(model.StatusDelivered)).Inc()
		q.emitResult(attempt, true)
		return
	case model.StatusRejected:
		metrics.DeliveryAttemptsTotal.WithLabelValues(q.actorID, string(model.StatusRejected)).Inc()
		q.emitResult(attempt, true)
		return
	case model.StatusError, "":
		q.handleRetryableFailure(job, attempt)
		return
	default:
		q.log.WithField("status", attempt.Status).Warn("delivery returned unrecognized status, treating as terminal failure")
		attempt.Status = model.StatusFailed
		q.emitResult(attempt, true)
	}
}

func (q *ActorQueue) handleRetryableFailure(job Job, attempt model.DeliveryAttempt) {
	if job.Attempt >= q.backoff.MaxAttempt {
		attempt.Status = model.StatusFailed
		metrics.DeliveryAttemptsTotal.WithLabelValues(q.actorID, string(model.StatusFailed)).Inc()
		q.emitResult(attempt, true)
		return
	}

	delay := DelayForAttempt(job.Attempt, q.backoff, jitterSeed(job.ActorID, job.Event.ID, job.Attempt))
	next := time.Now().Add(delay)
	attempt.Status = model.StatusScheduled
	attempt.NextAttemptAt = &next
	q.emitResult(attempt, false)

	q.wg.Add(1)
	go q.retryAfter(job, delay)
}

func (q *ActorQueue) retryAfter(job Job, delay time.Duration) {
	defer q.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-q.stopCh:
		return
	}
	select {
	case q.queue <- job:
	case <-q.stopCh:
		q.log.WithField("event_id", job.Event.ID).Warn("dropping retry: queue shutting down")
	}
}

func (q *ActorQueue) emitResult(attempt model.DeliveryAttempt, terminal bool) {
	fields := map[string]any{
		"event_id":       attempt.EventID,
		"route_name":     attempt.RouteName,
		"actor_id":       attempt.ActorID,
		"attempt_n":      attempt.AttemptN,
		"correlation_id": attempt.CorrelationID,
		"status":         string(attempt.Status),
		"terminal":       terminal,
	}
	if attempt.Error != "" {
		fields["error"] = attempt.Error
	}
	if attempt.NextAttemptAt != nil {
		fields["next_attempt_at"] = attempt.NextAttemptAt.Format(time.RFC3339Nano)
	}
	q.bus.Emit(observer.KindDeliveryResult, fields)
}

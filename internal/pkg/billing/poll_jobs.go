package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/jobqueue"
)

// QueuePollScheduler stores poll tasks as delayed Redis jobs so they survive
// restarts.
type QueuePollScheduler struct {
	queue *jobqueue.Queue
}

func NewQueuePollScheduler(q *jobqueue.Queue) *QueuePollScheduler {
	return &QueuePollScheduler{queue: q}
}

// SchedulePoll enqueues a provider poll job due after delay. Poll jobs are not
// retried by the queue; RunPoll schedules its own follow-up.
func (s *QueuePollScheduler) SchedulePoll(ctx context.Context, task PollTask, delay time.Duration) error {
	payload := jobqueue.ProviderPollJobPayload{
		ProviderPaymentID: task.ProviderPaymentID,
		Kind:              string(task.Kind),
		Attempt:           task.Attempt,
	}
	_, err := s.queue.EnqueueJob(ctx, jobqueue.JobTypeProviderPoll, payload.ToMap(),
		jobqueue.WithDelay(delay),
		jobqueue.WithMaxRetries(0),
	)
	return err
}

// RegisterPollHandler connects provider poll jobs to the reconciler. Poll
// errors are logged and the job still completes.
func RegisterPollHandler(q *jobqueue.Queue, r *Reconciler) {
	q.RegisterHandler(jobqueue.JobTypeProviderPoll, func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.ProviderPollJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid provider poll payload: %w", err)
		}
		task := PollTask{
			ProviderPaymentID: payload.ProviderPaymentID,
			Kind:              PollKind(payload.Kind),
			Attempt:           payload.Attempt,
		}
		if err := r.RunPoll(ctx, task); err != nil {
			log.Errorf("[Poller] Error polling %s provider_id=%d: %v", task.Kind, task.ProviderPaymentID, err)
		}
		return nil
	})
}

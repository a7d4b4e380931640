package publish

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// PollInterval between task-status requests.
	PollInterval = 5 * time.Second
	// MaxAttempts caps the poll loop at a five-minute ceiling.
	MaxAttempts = 60
)

// Outcome of one poll tick.
type Outcome int

const (
	// OutcomeNone means keep polling.
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	// OutcomeExpired means the task id is gone server-side (terminal failure).
	OutcomeExpired
	// OutcomeTimeout means the attempt cap was reached with no terminal
	// status. The operation may still have succeeded remotely.
	OutcomeTimeout
)

// TickResult carries what one tick learned: progress lines not seen before,
// the latest status, and a terminal outcome when polling should stop.
type TickResult struct {
	NewMessages []string
	Status      string
	Outcome     Outcome
	Result      *Result
	FailureText string
}

// StatusClient is the slice of Client the poller needs.
type StatusClient interface {
	TaskStatus(ctx context.Context, taskID string) (Task, error)
}

// Poller tracks one outstanding publish task. Cancellation is dropping the
// object: a tick scheduled for a poller the session no longer holds is
// discarded by the caller, so no stale tick can write into a reset session.
type Poller struct {
	TaskID string

	client   StatusClient
	attempts int
	cursor   int
	status   string
	log      *zap.Logger
}

func NewPoller(client StatusClient, taskID string, log *zap.Logger) *Poller {
	return &Poller{TaskID: taskID, client: client, log: log}
}

// Attempts reports how many ticks have run.
func (p *Poller) Attempts() int { return p.attempts }

// Tick performs one poll transition. Transport and server errors other than
// "not found" are tolerated and polling continues; the cursor guarantees a
// progress item is emitted at most once however often it reappears.
func (p *Poller) Tick(ctx context.Context) TickResult {
	p.attempts++

	task, err := p.client.TaskStatus(ctx, p.TaskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			p.log.Warn("publish task expired", zap.String("task_id", p.TaskID))
			return TickResult{Outcome: OutcomeExpired, FailureText: "publish task expired"}
		}
		p.log.Warn("poll attempt failed",
			zap.String("task_id", p.TaskID),
			zap.Int("attempt", p.attempts),
			zap.Error(err))
		if p.attempts >= MaxAttempts {
			return TickResult{Outcome: OutcomeTimeout}
		}
		return TickResult{Outcome: OutcomeNone}
	}

	res := TickResult{Status: task.Status}
	p.status = task.Status

	if len(task.Progress) > p.cursor {
		for _, item := range task.Progress[p.cursor:] {
			res.NewMessages = append(res.NewMessages, item.Message)
		}
		p.cursor = len(task.Progress)
	}

	switch task.Status {
	case StatusCompleted:
		res.Outcome = OutcomeCompleted
		res.Result = task.Result
	case StatusFailed:
		res.Outcome = OutcomeFailed
		res.FailureText = task.Error
		if res.FailureText == "" {
			res.FailureText = "Update failed"
		}
	default:
		if p.attempts >= MaxAttempts {
			res.Outcome = OutcomeTimeout
		}
	}
	return res
}

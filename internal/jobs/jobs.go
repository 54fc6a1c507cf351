// Package jobs is the durable queue of deferred actions (deleting a local
// archive after an upload, uploading to a provider, a scheduled restore).
//
// Jobs live in the state database and are drained in FIFO order by a later
// invocation. Every queue mutation is its own short transaction, so a job
// added by one process while another is draining is never lost.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/mcdonaldj/sitebak/internal/notice"
	"github.com/mcdonaldj/sitebak/internal/statestore"
)

// Bucket holds the queued jobs, keyed by sequence.
var Bucket = []byte("jobs")

// Job states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Defaults of the retry policy.
const (
	DefaultMaxAttempts = 3
	DefaultStaleAfter  = time.Hour
	maxBackoff         = time.Hour
)

// ErrUnknownAction is recorded for jobs whose action has no handler.
var ErrUnknownAction = errors.New("unknown job action")

// Job is one deferred action.
type Job struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Action      string    `json:"action"`
	ActionData  string    `json:"action_data"`
	ActionTitle string    `json:"action_title"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	NextRunAt   time.Time `json:"next_run_at"`
	RunnerID    string    `json:"runner_id,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
}

// Handler performs one job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job Job) error

// Result is the outcome of one job during a drain.
type Result struct {
	Job    Job
	Status string
	Err    error
	// Dropped is set when the job was removed without completing.
	Dropped bool
	// Lost is set when another runner reclaimed the job while its handler
	// ran. The outcome was not recorded.
	Lost bool
}

// Summary describes a drain.
type Summary struct {
	Completed int
	Retrying  int
	Dropped   int
	Lost      int
	Results   []Result
}

// Options configure the retry policy.
type Options struct {
	MaxAttempts int
	StaleAfter  time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Queue is the job queue.
type Queue struct {
	store    *statestore.Store
	log      zerolog.Logger
	opts     Options
	runnerID string

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a Queue stored in store.
func New(store *statestore.Store, opts Options, log zerolog.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		store:    store,
		log:      log.With().Str("component", "jobs").Logger(),
		opts:     opts,
		runnerID: uuid.NewString(),
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for action.
func (q *Queue) Register(action string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[action] = h
}

func (q *Queue) handler(action string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[action]
	return h, ok
}

// Add appends job to the queue. A job with the same action and action data
// already pending is not added again; added reports which case applied.
// The job is committed to disk before Add returns.
func (q *Queue) Add(job Job) (added bool, err error) {
	if job.Action == "" {
		return false, errors.New("job action is required")
	}
	now := q.opts.Now()

	err = q.store.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(Bucket)
		if err != nil {
			return err
		}

		dup := false
		if err := eachJob(b, func(_ []byte, j Job) error {
			if j.Action == job.Action && j.ActionData == job.ActionData {
				dup = true
			}
			return nil
		}); err != nil {
			return err
		}
		if dup {
			return nil
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		job.ID = uuid.NewString()
		job.Seq = seq
		job.EnqueuedAt = now
		job.NextRunAt = now
		job.Status = StatusQueued
		job.Attempts = 0
		job.LastError = ""
		job.RunnerID = ""
		job.StartedAt = time.Time{}
		added = true
		return statestore.PutJSON(b, statestore.SeqKey(seq), job)
	})
	if err != nil {
		return false, fmt.Errorf("adding %s job: %w", job.Action, err)
	}

	if added {
		q.log.Info().Str("action", job.Action).Str("action_data", job.ActionData).Msg("job queued")
	} else {
		q.log.Debug().Str("action", job.Action).Str("action_data", job.ActionData).Msg("job already queued")
	}
	return added, nil
}

// List returns the pending jobs in execution order.
func (q *Queue) List() ([]Job, error) {
	var out []Job
	err := q.store.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return eachJob(b, func(_ []byte, j Job) error {
			out = append(out, j)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return out, nil
}

// Clear removes every job.
func (q *Queue) Clear() error {
	err := q.store.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(Bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(Bucket)
	})
	if err != nil {
		return fmt.Errorf("clearing jobs: %w", err)
	}
	return nil
}

// RunAll drains the due jobs in FIFO order. A failing job never stops the
// drain. Jobs still backing off, or running in another process, are left
// for a later drain. RunAll stops early when ctx is cancelled.
func (q *Queue) RunAll(ctx context.Context) (Summary, error) {
	var sum Summary
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		job, dropped, err := q.claim(seen)
		if err != nil {
			return sum, err
		}
		for _, r := range dropped {
			sum.Dropped++
			sum.Results = append(sum.Results, r)
		}
		if job == nil {
			break
		}
		seen[job.ID] = true

		h, _ := q.handler(job.Action)
		q.log.Info().Str("action", job.Action).Str("action_data", job.ActionData).Int("attempt", job.Attempts).Msg("running job")
		runErr := runHandler(ctx, h, *job)

		r, err := q.finish(*job, runErr)
		if err != nil {
			return sum, err
		}
		switch {
		case r.Lost:
			sum.Lost++
		case r.Status == StatusCompleted:
			sum.Completed++
		case r.Dropped:
			sum.Dropped++
		default:
			sum.Retrying++
		}
		sum.Results = append(sum.Results, r)
	}

	return sum, nil
}

func runHandler(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

// claim marks the first due job as running. Stale running jobs and jobs
// with no handler are resolved on the way and returned as dropped results
// when they leave the queue.
func (q *Queue) claim(seen map[string]bool) (*Job, []Result, error) {
	now := q.opts.Now()
	var claimed *Job
	var dropped []Result
	var notices []notice.Notice

	err := q.store.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}

		type stored struct {
			key []byte
			job Job
		}
		var queued []stored
		var unreadable [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			key := append([]byte(nil), k...)
			var j Job
			if err := decodeJob(v, &j); err != nil {
				q.log.Warn().Err(err).Msg("removing unreadable job")
				unreadable = append(unreadable, key)
				return nil
			}
			queued = append(queued, stored{key: key, job: j})
			return nil
		}); err != nil {
			return err
		}
		for _, k := range unreadable {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		for _, s := range queued {
			j := s.job

			if j.Status == StatusRunning {
				if now.Sub(j.StartedAt) < q.opts.StaleAfter {
					continue
				}
				q.log.Warn().Str("action", j.Action).Str("runner_id", j.RunnerID).Msg("job runner went away")
				r, n := q.failed(&j, errors.New("job did not finish"), now)
				if r.Dropped {
					if err := b.Delete(s.key); err != nil {
						return err
					}
					dropped = append(dropped, r)
					notices = append(notices, n)
				} else if err := statestore.PutJSON(b, s.key, j); err != nil {
					return err
				}
				continue
			}

			if seen[j.ID] || j.NextRunAt.After(now) {
				continue
			}

			if _, ok := q.handler(j.Action); !ok {
				q.log.Error().Str("action", j.Action).Msg("dropping job with unknown action")
				j.Status = StatusFailed
				j.LastError = ErrUnknownAction.Error()
				if err := b.Delete(s.key); err != nil {
					return err
				}
				dropped = append(dropped, Result{Job: j, Status: StatusFailed, Err: ErrUnknownAction, Dropped: true})
				notices = append(notices, dropNotice(j))
				continue
			}

			j.Status = StatusRunning
			j.Attempts++
			j.RunnerID = q.runnerID
			j.StartedAt = now
			if err := statestore.PutJSON(b, s.key, j); err != nil {
				return err
			}
			claimed = &j
			break
		}

		for _, n := range notices {
			if err := notice.Put(tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("claiming job: %w", err)
	}
	return claimed, dropped, nil
}

// finish records the outcome of a claimed job.
func (q *Queue) finish(job Job, runErr error) (Result, error) {
	now := q.opts.Now()
	res := Result{Job: job, Status: StatusCompleted}
	key := statestore.SeqKey(job.Seq)

	err := q.store.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(Bucket)
		if err != nil {
			return err
		}

		var current Job
		found, err := statestore.GetJSON(b, key, &current)
		if err != nil {
			return err
		}
		if !found || current.ID != job.ID {
			// Cleared while running.
			if runErr != nil {
				res = Result{Job: job, Status: StatusFailed, Err: runErr, Dropped: true}
			}
			return nil
		}
		if current.RunnerID != q.runnerID || !current.StartedAt.Equal(job.StartedAt) {
			res = Result{Job: current, Status: current.Status, Err: runErr, Lost: true}
			return nil
		}

		if runErr == nil {
			return b.Delete(key)
		}

		var n notice.Notice
		res, n = q.failed(&current, runErr, now)
		if res.Dropped {
			if err := b.Delete(key); err != nil {
				return err
			}
			return notice.Put(tx, n)
		}
		return statestore.PutJSON(b, key, current)
	})
	if err != nil {
		return res, fmt.Errorf("recording %s job: %w", job.Action, err)
	}

	switch {
	case res.Lost:
		q.log.Warn().Err(runErr).Str("action", job.Action).Str("owner", res.Job.RunnerID).
			Str("status", res.Job.Status).Msg("job was reclaimed while running, outcome ignored")
	case runErr == nil:
		q.log.Info().Str("action", job.Action).Str("action_data", job.ActionData).Msg("job completed")
	case res.Dropped:
		q.log.Error().Err(runErr).Str("action", job.Action).Int("attempts", job.Attempts).Msg("job failed, giving up")
	default:
		q.log.Warn().Err(runErr).Str("action", job.Action).Int("attempts", job.Attempts).
			Time("next_run_at", res.Job.NextRunAt).Msg("job failed, will retry")
	}
	return res, nil
}

// failed applies the retry policy to j after a failed attempt. j is either
// re-queued with a backoff or marked for removal with a notice.
func (q *Queue) failed(j *Job, cause error, now time.Time) (Result, notice.Notice) {
	j.LastError = cause.Error()
	j.RunnerID = ""
	j.StartedAt = time.Time{}

	if j.Attempts >= q.opts.MaxAttempts {
		j.Status = StatusFailed
		return Result{Job: *j, Status: StatusFailed, Err: cause, Dropped: true}, dropNotice(*j)
	}

	j.Status = StatusQueued
	j.NextRunAt = now.Add(Backoff(j.Attempts))
	return Result{Job: *j, Status: StatusQueued, Err: cause}, notice.Notice{}
}

func dropNotice(j Job) notice.Notice {
	title := j.ActionTitle
	if title == "" {
		title = j.Action
	}
	msg := fmt.Sprintf("Job %q failed", title)
	if j.ActionData != "" {
		msg += " for " + j.ActionData
	}
	if j.LastError != "" {
		msg += ": " + j.LastError
	}
	return notice.Notice{Level: notice.LevelError, Message: msg}
}

// Backoff returns the delay before the next attempt of a job that has
// failed attempts times: 2^attempts minutes, at most an hour.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 6 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Minute
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func eachJob(b *bolt.Bucket, fn func(k []byte, j Job) error) error {
	return b.ForEach(func(k, v []byte) error {
		var j Job
		if err := decodeJob(v, &j); err != nil {
			return nil
		}
		return fn(k, j)
	})
}

func decodeJob(data []byte, j *Job) error {
	if err := json.Unmarshal(data, j); err != nil {
		return fmt.Errorf("decoding job: %w", err)
	}
	return nil
}

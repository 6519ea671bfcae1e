// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package retryqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/metrics"
)

// Errors
var (
	// ErrQueueClosed is returned when the queue is closed.
	ErrQueueClosed = errors.New("retry queue is closed")

	// ErrTaskNotFound is returned when a task doesn't exist.
	ErrTaskNotFound = errors.New("retry task not found")

	// ErrEmptyPreprintID is returned when scheduling a task without a preprint.
	ErrEmptyPreprintID = errors.New("retry task needs a preprint id")
)

const prefixTask = "task:"

// Task is one pending asynchronous SHARE push.
type Task struct {
	ID          string    `json:"id"`
	PreprintID  string    `json:"preprint_id"`
	ShareType   string    `json:"share_type,omitempty"`
	OldSubjects []string  `json:"old_subjects,omitempty"`
	Retries     int       `json:"retries"`
	NextAttempt time.Time `json:"next_attempt"`
	CreatedAt   time.Time `json:"created_at"`

	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`

	// LeaseExpiry is zero when unclaimed. An expired lease can be taken
	// over by any worker.
	LeaseExpiry time.Time `json:"lease_expiry,omitempty"`
	LeaseHolder string    `json:"lease_holder,omitempty"`
}

func (t *Task) leased(now time.Time) bool {
	return !t.LeaseExpiry.IsZero() && now.Before(t.LeaseExpiry)
}

// BadgerQueue stores retry tasks in BadgerDB.
type BadgerQueue struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open validates cfg and opens (or creates) the queue.
func Open(cfg *Config) (*BadgerQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry queue config: %w", err)
	}
	q, err := open(cfg)
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Retry queue opened")
	return q, nil
}

// OpenForTesting opens an in-memory queue without validation so tests can
// use sub-second intervals.
func OpenForTesting(cfg *Config) (*BadgerQueue, error) {
	cfg.InMemory = true
	cfg.Path = ""
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	return open(cfg)
}

func open(cfg *Config) (*BadgerQueue, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &BadgerQueue{db: db, config: *cfg}, nil
}

func (q *BadgerQueue) checkOpen() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	return nil
}

// Schedule stores a new task for preprintID due at next.
func (q *BadgerQueue) Schedule(ctx context.Context, preprintID, shareType string, oldSubjects []string, next time.Time) (*Task, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	if preprintID == "" {
		return nil, ErrEmptyPreprintID
	}

	task := &Task{
		ID:          uuid.New().String(),
		PreprintID:  preprintID,
		ShareType:   shareType,
		OldSubjects: slices.Clone(oldSubjects),
		NextAttempt: next.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.db.Update(func(txn *badger.Txn) error {
		return putTask(txn, task)
	}); err != nil {
		return nil, fmt.Errorf("write retry task: %w", err)
	}

	metrics.RetriesScheduled.Inc()
	logging.Ctx(ctx).Info().
		Str("task_id", task.ID).
		Str("preprint_id", preprintID).
		Time("next_attempt", task.NextAttempt).
		Msg("Scheduled SHARE retry")
	return task, nil
}

// Get returns a task by id.
func (q *BadgerQueue) Get(_ context.Context, id string) (*Task, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	var task *Task
	err := q.db.View(func(txn *badger.Txn) error {
		t, err := getTask(txn, id)
		task = t
		return err
	})
	return task, err
}

// Due returns up to limit unleased tasks whose next attempt is not after
// now, earliest first.
func (q *BadgerQueue) Due(ctx context.Context, now time.Time, limit int) ([]*Task, error) {
	tasks, err := q.scan(ctx, func(t *Task) bool {
		return !t.NextAttempt.After(now) && !t.leased(now)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// Pending returns every stored task, earliest first.
func (q *BadgerQueue) Pending(ctx context.Context) ([]*Task, error) {
	return q.scan(ctx, func(*Task) bool { return true })
}

func (q *BadgerQueue) scan(ctx context.Context, keep func(*Task) bool) ([]*Task, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}

	var tasks []*Task
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixTask)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var task Task
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &task)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Retry queue failed to unmarshal task")
				continue
			}
			if keep(&task) {
				tasks = append(tasks, &task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate retry tasks: %w", err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].NextAttempt.Before(tasks[j].NextAttempt)
	})
	return tasks, nil
}

// Reschedule records a failed attempt, advances the task to retries and
// releases its lease.
func (q *BadgerQueue) Reschedule(_ context.Context, id string, retries int, next time.Time, lastError string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	err := q.update(id, func(t *Task) {
		t.Retries = retries
		t.NextAttempt = next.UTC()
		t.LastAttemptAt = time.Now().UTC()
		t.LastError = lastError
		t.LeaseExpiry = time.Time{}
		t.LeaseHolder = ""
	})
	if err != nil {
		return err
	}
	metrics.RetriesScheduled.Inc()
	return nil
}

// Complete removes a task that reached a terminal state.
func (q *BadgerQueue) Complete(_ context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	return q.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixTask + id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTaskNotFound
		} else if err != nil {
			return fmt.Errorf("get retry task: %w", err)
		}
		return txn.Delete(key)
	})
}

// TryClaim takes the durable lease on a task.
//
// Returns:
//   - (true, nil): lease acquired or extended by the same holder
//   - (false, nil): another holder has an active lease
//   - (false, error): the task is gone or the database failed
func (q *BadgerQueue) TryClaim(_ context.Context, id, holder string) (bool, error) {
	if err := q.checkOpen(); err != nil {
		return false, err
	}

	now := time.Now()
	var claimed bool
	err := q.db.Update(func(txn *badger.Txn) error {
		task, err := getTask(txn, id)
		if err != nil {
			return err
		}
		if task.leased(now) && task.LeaseHolder != holder {
			logging.Debug().
				Str("task_id", id).
				Str("lease_holder", task.LeaseHolder).
				Time("lease_expiry", task.LeaseExpiry).
				Msg("Retry task has active lease, skipping")
			return nil
		}
		task.LeaseExpiry = now.Add(q.config.LeaseDuration)
		task.LeaseHolder = holder
		claimed = true
		return putTask(txn, task)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Release clears the lease on a task so it can be claimed immediately.
// Releasing a missing task is not an error.
func (q *BadgerQueue) Release(_ context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	err := q.update(id, func(t *Task) {
		t.LeaseExpiry = time.Time{}
		t.LeaseHolder = ""
	})
	if errors.Is(err, ErrTaskNotFound) {
		return nil
	}
	return err
}

// Depth returns the number of stored tasks and updates the depth gauge.
func (q *BadgerQueue) Depth() int {
	if q.checkOpen() != nil {
		return 0
	}
	count := 0
	if err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(prefixTask)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Retry queue failed to count tasks")
	}
	metrics.RetryQueueDepth.Set(float64(count))
	return count
}

// Close shuts the queue down, giving up after CloseTimeout.
func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	timeout := q.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- q.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Retry queue closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func (q *BadgerQueue) update(id string, mutate func(*Task)) error {
	return q.db.Update(func(txn *badger.Txn) error {
		task, err := getTask(txn, id)
		if err != nil {
			return err
		}
		mutate(task)
		return putTask(txn, task)
	})
}

func getTask(txn *badger.Txn, id string) (*Task, error) {
	item, err := txn.Get([]byte(prefixTask + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get retry task: %w", err)
	}
	var task Task
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &task)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal retry task: %w", err)
	}
	return &task, nil
}

func putTask(txn *badger.Txn, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal retry task: %w", err)
	}
	return txn.Set([]byte(prefixTask+task.ID), data)
}

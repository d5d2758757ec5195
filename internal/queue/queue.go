// Package queue is a durable delivery queue on Redis.
//
// Layout per queue name:
//
//	<name>:ready                  list, LPUSH in / BRPOPLPUSH out
//	<name>:processing:<instance>  list, jobs owned by one queue instance
//	<name>:instances              sorted set of instance heartbeats (unix ms)
//	<name>:delayed                sorted set scored by due time (unix ms)
//	<name>:dead                   list of jobs that exhausted their attempts (capped)
//
// A job that fails is re-scheduled on the delayed set with exponential
// backoff until its attempts are used up. Every running instance refreshes
// its heartbeat on each promote tick. The processing list of an instance whose
// heartbeat is older than StaleAfter is moved back to ready by whichever
// instance notices first, so a live instance never loses its in-flight jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

const (
	DefaultAttempts     = 3
	DefaultInitialDelay = 2 * time.Second
	defaultPollTimeout  = time.Second
	defaultPromoteEvery = 500 * time.Millisecond
	defaultStaleAfter   = 30 * time.Second
	promoteBatch        = 100
)

// JobOptions is the retry policy attached at enqueue time.
type JobOptions struct {
	Attempts       int         `json:"attempts"`
	Backoff        BackoffType `json:"backoff"`
	InitialDelayMs int64       `json:"initialDelay"`
}

// Job is the wire item stored in Redis.
type Job struct {
	ID             string     `json:"id"`
	NotificationID int64      `json:"notificationId"`
	DelayMs        int64      `json:"delay,omitempty"`
	Attempt        int        `json:"attempt"`
	Opts           JobOptions `json:"opts"`
	EnqueuedAt     time.Time  `json:"enqueuedAt"`
	LastError      string     `json:"lastError,omitempty"`
}

// RetryDelay is the wait after the given failed attempt (1-based).
func (o JobOptions) RetryDelay(attempt int) time.Duration {
	base := time.Duration(o.InitialDelayMs) * time.Millisecond
	if o.Backoff == BackoffFixed || attempt <= 1 {
		return base
	}
	return base << (attempt - 1)
}

type Handler func(ctx context.Context, job Job) error

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetried   Outcome = "retried"
	OutcomeDead      Outcome = "dead"
)

type Observer func(outcome Outcome, job Job)

type Config struct {
	Name          string
	Concurrency   int
	Attempts      int
	InitialDelay  time.Duration
	DeadLetterCap int64
	PollTimeout   time.Duration
	PromoteEvery  time.Duration
	StaleAfter    time.Duration
}

type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

type RedisQueue struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
	log    *logger.Logger

	instance      string
	readyKey      string
	processingKey string
	instancesKey  string
	delayedKey    string
	deadKey       string

	mu       sync.Mutex
	observer Observer
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(client *redis.Client, cfg Config, clk clock.Clock, log *logger.Logger) *RedisQueue {
	if cfg.Name == "" {
		cfg.Name = "notifications"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.PromoteEvery <= 0 {
		cfg.PromoteEvery = defaultPromoteEvery
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if clk == nil {
		clk = clock.New()
	}

	instance := uuid.NewString()
	return &RedisQueue{
		client:        client,
		cfg:           cfg,
		clock:         clk,
		log:           log,
		instance:      instance,
		readyKey:      cfg.Name + ":ready",
		processingKey: processingKey(cfg.Name, instance),
		instancesKey:  cfg.Name + ":instances",
		delayedKey:    cfg.Name + ":delayed",
		deadKey:       cfg.Name + ":dead",
	}
}

func processingKey(name, instance string) string {
	return name + ":processing:" + instance
}

// Instance identifies this queue's processing list and heartbeat.
func (q *RedisQueue) Instance() string {
	return q.instance
}

func (q *RedisQueue) SetObserver(o Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observer = o
}

func (q *RedisQueue) observe(outcome Outcome, job Job) {
	q.mu.Lock()
	o := q.observer
	q.mu.Unlock()
	if o != nil {
		o(outcome, job)
	}
}

func (q *RedisQueue) defaultOptions() JobOptions {
	return JobOptions{
		Attempts:       q.cfg.Attempts,
		Backoff:        BackoffExponential,
		InitialDelayMs: q.cfg.InitialDelay.Milliseconds(),
	}
}

// Enqueue adds a delivery job for notificationID. A positive delay parks the
// job on the delayed set until it is due.
func (q *RedisQueue) Enqueue(ctx context.Context, notificationID int64, delay time.Duration) (Job, error) {
	job := Job{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		DelayMs:        delay.Milliseconds(),
		Opts:           q.defaultOptions(),
		EnqueuedAt:     q.clock.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return Job{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	if delay > 0 {
		due := q.clock.Now().Add(delay).UnixMilli()
		err = q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(due), Member: data}).Err()
	} else {
		err = q.client.LPush(ctx, q.readyKey, data).Err()
	}
	if err != nil {
		return Job{}, apperror.Wrapf(err, apperror.KindTransient, "failed to enqueue notification %d", notificationID)
	}

	q.log.Debug("Enqueued job %s for notification %d (delay %v)", job.ID, notificationID, delay)
	return job, nil
}

// Start registers this instance, recovers jobs orphaned by stale instances,
// then runs the promoter and Concurrency workers until Stop or ctx
// cancellation.
func (q *RedisQueue) Start(ctx context.Context, handler Handler) error {
	if err := q.heartbeat(ctx); err != nil {
		return fmt.Errorf("failed to register queue instance: %w", err)
	}
	if _, err := q.RecoverStale(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.promoteLoop(ctx)

	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, i, handler)
	}

	q.log.Info("Queue %s started with %d workers", q.cfg.Name, q.cfg.Concurrency)
	return nil
}

func (q *RedisQueue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if _, err := q.drain(ctx, q.processingKey); err != nil {
		q.log.Error("Failed to release in-flight jobs: %v", err)
	}
	if err := q.client.ZRem(ctx, q.instancesKey, q.instance).Err(); err != nil {
		q.log.Error("Failed to deregister queue instance: %v", err)
	}
	q.log.Info("Queue %s stopped", q.cfg.Name)
}

func (q *RedisQueue) heartbeat(ctx context.Context) error {
	return q.client.ZAdd(ctx, q.instancesKey, redis.Z{
		Score:  float64(q.clock.Now().UnixMilli()),
		Member: q.instance,
	}).Err()
}

// RecoverStale moves the in-flight jobs of instances whose heartbeat is older
// than StaleAfter back to ready. ZREM decides which instance recovers them.
func (q *RedisQueue) RecoverStale(ctx context.Context) (int, error) {
	cutoff := q.clock.Now().Add(-q.cfg.StaleAfter).UnixMilli()
	stale, err := q.client.ZRangeByScore(ctx, q.instancesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list stale instances: %w", err)
	}

	recovered := 0
	for _, instance := range stale {
		if instance == q.instance {
			continue
		}
		removed, err := q.client.ZRem(ctx, q.instancesKey, instance).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to claim stale instance %s: %w", instance, err)
		}
		if removed != 1 {
			continue
		}

		n, err := q.drain(ctx, processingKey(q.cfg.Name, instance))
		recovered += n
		if err != nil {
			return recovered, err
		}
		if n > 0 {
			q.log.Warn("Recovered %d in-flight jobs from stale instance %s", n, instance)
		}
	}
	return recovered, nil
}

func (q *RedisQueue) drain(ctx context.Context, key string) (int, error) {
	n := 0
	for {
		err := q.client.RPopLPush(ctx, key, q.readyKey).Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to recover processing jobs: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.clock.After(q.cfg.PromoteEvery):
		}

		if err := q.heartbeat(ctx); err != nil && ctx.Err() == nil {
			q.log.Error("Failed to refresh queue heartbeat: %v", err)
		}
		if _, err := q.RecoverStale(ctx); err != nil && ctx.Err() == nil {
			q.log.Error("Failed to recover stale jobs: %v", err)
		}
		if _, err := q.PromoteDue(ctx); err != nil && ctx.Err() == nil {
			q.log.Error("Failed to promote delayed jobs: %v", err)
		}
	}
}

// PromoteDue moves delayed jobs whose due time has passed onto ready.
// ZREM decides ownership so concurrent promoters never double-queue.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return promoted, err
		}
		if removed != 1 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey, member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

func (q *RedisQueue) workerLoop(ctx context.Context, id int, handler Handler) {
	defer q.wg.Done()

	for ctx.Err() == nil {
		if _, err := q.ProcessNext(ctx, handler); err != nil && ctx.Err() == nil {
			q.log.Error("Worker %d: %v", id, err)
			select {
			case <-ctx.Done():
			case <-q.clock.After(q.cfg.PollTimeout):
			}
		}
	}
}

// ProcessNext waits up to PollTimeout for a ready job and runs handler on
// it. It reports whether a job was processed.
func (q *RedisQueue) ProcessNext(ctx context.Context, handler Handler) (bool, error) {
	raw, err := q.client.BRPopLPush(ctx, q.readyKey, q.processingKey, q.cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Error("Dropping malformed job: %v", err)
		q.ack(ctx, raw)
		q.bury(ctx, raw)
		return true, nil
	}

	job.Attempt++
	handleErr := q.safeHandle(ctx, handler, job)

	switch {
	case handleErr == nil:
		q.observe(OutcomeCompleted, job)

	case apperror.IsPermanent(handleErr) || job.Attempt >= job.Opts.Attempts:
		job.LastError = handleErr.Error()
		q.log.Warn("Job %s for notification %d dead after attempt %d: %v", job.ID, job.NotificationID, job.Attempt, handleErr)
		q.buryJob(ctx, job)
		q.observe(OutcomeDead, job)

	default:
		job.LastError = handleErr.Error()
		delay := job.Opts.RetryDelay(job.Attempt)
		q.log.Info("Job %s for notification %d failed attempt %d/%d, retrying in %v",
			job.ID, job.NotificationID, job.Attempt, job.Opts.Attempts, delay)
		if err := q.schedule(ctx, job, delay); err != nil {
			q.log.Error("Failed to reschedule job %s: %v", job.ID, err)
		}
		q.observe(OutcomeRetried, job)
	}

	q.ack(ctx, raw)
	return true, nil
}

func (q *RedisQueue) safeHandle(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *RedisQueue) schedule(ctx context.Context, job Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := q.clock.Now().Add(delay).UnixMilli()
	return q.client.ZAdd(ctx, q.delayedKey, redis.Z{Score: float64(due), Member: data}).Err()
}

func (q *RedisQueue) ack(ctx context.Context, raw string) {
	if err := q.client.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
		q.log.Error("Failed to ack job: %v", err)
	}
}

func (q *RedisQueue) buryJob(ctx context.Context, job Job) {
	data, err := json.Marshal(job)
	if err != nil {
		q.log.Error("Failed to marshal dead job %s: %v", job.ID, err)
		return
	}
	q.bury(ctx, string(data))
}

func (q *RedisQueue) bury(ctx context.Context, raw string) {
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.deadKey, raw)
	if q.cfg.DeadLetterCap > 0 {
		pipe.LTrim(ctx, q.deadKey, 0, q.cfg.DeadLetterCap-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("Failed to move job to dead list: %v", err)
	}
}

// Stats counts jobs across the queue. Processing sums the lists of every
// registered instance plus this one.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	instances, err := q.client.ZRange(ctx, q.instancesKey, 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey)
	delayed := pipe.ZCard(ctx, q.delayedKey)
	dead := pipe.LLen(ctx, q.deadKey)

	processing := []*redis.IntCmd{pipe.LLen(ctx, q.processingKey)}
	for _, instance := range instances {
		if instance != q.instance {
			processing = append(processing, pipe.LLen(ctx, processingKey(q.cfg.Name, instance)))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	stats := Stats{
		Ready:   ready.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}
	for _, cmd := range processing {
		stats.Processing += cmd.Val()
	}
	return stats, nil
}

func (q *RedisQueue) Health(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

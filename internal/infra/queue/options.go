package queue

import (
	"io"
	"log/slog"
	"time"
)

const (
	defaultPollInterval    = time.Second
	defaultExpireAfter     = 24 * time.Hour
	defaultRetainCompleted = 7 * 24 * time.Hour
	defaultActiveTimeout   = 15 * time.Minute
	defaultStoreTimeout    = 10 * time.Second
	maxErrorLength         = 2000
)

type config struct {
	logger          *slog.Logger
	metrics         Metrics
	clock           Clock
	retry           RetryPolicy
	pollInterval    time.Duration
	expireAfter     time.Duration
	retainCompleted time.Duration
	activeTimeout   time.Duration
	storeTimeout    time.Duration
	classifier      FailureClassifier
	deadHooks       []DeadLetterFunc
	waker           Waker
}

type Option func(*config)

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithRetryPolicy sets the policy for jobs enqueued without their own.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *config) { c.retry = p }
}

// WithPollInterval bounds how long an idle slot waits before looking again.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) { c.pollInterval = d }
}

// WithExpireAfter sets how long a job may wait unprocessed.
func WithExpireAfter(d time.Duration) Option {
	return func(c *config) { c.expireAfter = d }
}

// WithRetainCompleted sets how long completed jobs stay queryable.
func WithRetainCompleted(d time.Duration) Option {
	return func(c *config) { c.retainCompleted = d }
}

// WithActiveTimeout sets how long a claim may go without completing before
// maintenance hands it back.
func WithActiveTimeout(d time.Duration) Option {
	return func(c *config) { c.activeTimeout = d }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(c *config) { c.storeTimeout = d }
}

func WithFailureClassifier(fc FailureClassifier) Option {
	return func(c *config) { c.classifier = fc }
}

// WithDeadLetterHook runs fn for every job that dies, after the kind's own
// DeadLetterHandler.
func WithDeadLetterHook(fn DeadLetterFunc) Option {
	return func(c *config) { c.deadHooks = append(c.deadHooks, fn) }
}

// WithWaker wakes idle slots as soon as new work is announced.
func WithWaker(w Waker) Option {
	return func(c *config) { c.waker = w }
}

func (c *config) withDefaults() {
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.metrics == nil {
		c.metrics = NopMetrics{}
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	c.retry = c.retry.withDefaults()
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.expireAfter <= 0 {
		c.expireAfter = defaultExpireAfter
	}
	if c.retainCompleted <= 0 {
		c.retainCompleted = defaultRetainCompleted
	}
	if c.activeTimeout <= 0 {
		c.activeTimeout = defaultActiveTimeout
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = defaultStoreTimeout
	}
	if c.classifier == nil {
		c.classifier = defaultFailureClassifier
	}
}

// EnqueueOption tunes a single job.
type EnqueueOption func(*enqueueConfig)

type enqueueConfig struct {
	retry      RetryPolicy
	startAfter time.Duration
}

// WithJobRetry overrides the queue-wide retry policy for one job.
func WithJobRetry(p RetryPolicy) EnqueueOption {
	return func(c *enqueueConfig) { c.retry = p.withDefaults() }
}

// WithStartAfter delays the first attempt.
func WithStartAfter(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) { c.startAfter = d }
}

package ratecontrol

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/resilience/failure"
)

const (
	// increaseEvery is the length of the clean success streak that earns a rate increase.
	increaseEvery = 10

	increaseFactor    = 1.1
	rateLimitedFactor = 0.5
	serverErrorFactor = 0.8
	backoffFactor     = 0.3

	// logThreshold suppresses log noise for tiny adjustments.
	logThreshold = 0.1
)

// Stats is a point-in-time view of a controller.
type Stats struct {
	Upstream     string  `json:"upstream"`
	CurrentRate  float64 `json:"current_rate"`
	Tokens       float64 `json:"tokens"`
	Burst        int     `json:"burst"`
	SuccessCount int64   `json:"success_count"`
	FailureCount int64   `json:"failure_count"`
}

// Controller is an adaptive token bucket for a single upstream.
// The bucket itself is a rate.Limiter; the controller owns the refill rate
// and moves it within [MinRate, MaxRate] based on call outcomes.
type Controller struct {
	name    string
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu           sync.Mutex
	currentRate  float64
	cleanStreak  int
	successCount int64
	failureCount int64
}

// NewController creates a controller with a full bucket.
func NewController(name string, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	initial := clamp(cfg.RequestsPerSecond, cfg.MinRate, cfg.MaxRate)
	c := &Controller{
		name:        name,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(initial), cfg.BurstAllowance),
		logger:      logger,
		currentRate: initial,
	}
	metrics.RecordUpstreamRate(name, initial)
	return c
}

// Name returns the upstream name.
func (c *Controller) Name() string {
	return c.name
}

// Acquire blocks until one token is available or ctx is done.
// The wait is computed from the token deficit; nothing polls.
func (c *Controller) Acquire(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses outright when the deadline is closer than the required delay.
		return fmt.Errorf("acquire %s: %w", c.name, err)
	}
	return nil
}

// OnSuccess records a clean call. Every tenth consecutive clean call raises the rate by 10%.
func (c *Controller) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCount++
	c.cleanStreak++
	if c.cleanStreak%increaseEvery == 0 {
		c.adjustLocked(increaseFactor, "increase")
	}
}

// OnFailure records a failed call. Throttling halves the rate, generic upstream
// faults cut it by 20%, anything else only breaks the success streak.
func (c *Controller) OnFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	c.cleanStreak = 0

	switch {
	case failure.Classify(err) == failure.RateLimited:
		c.adjustLocked(rateLimitedFactor, "decrease")
	case failure.IsServerError(err):
		c.adjustLocked(serverErrorFactor, "decrease")
	}
}

// Backoff drops the rate to 30% and empties the bucket.
// Used once throttling has been confirmed by the upstream.
//
// The limiter only hands out whole tokens, so the bucket is drained by
// reserving the ceiling of its content. A fractional residue becomes a debt
// of less than one token, delaying the next token by under one refill
// interval.
func (c *Controller) Backoff() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanStreak = 0
	c.adjustLocked(backoffFactor, "backoff")

	now := time.Now()
	if n := int(math.Ceil(c.limiter.TokensAt(now))); n > 0 {
		c.limiter.ReserveN(now, n)
	}
}

// CurrentRate returns the current refill rate in requests per second.
func (c *Controller) CurrentRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRate
}

// Tokens returns the number of tokens currently in the bucket, within [0, burst].
// The limiter tracks queued reservations as negative tokens; callers never see that.
func (c *Controller) Tokens() float64 {
	return clamp(c.limiter.TokensAt(time.Now()), 0, float64(c.cfg.BurstAllowance))
}

// Stats returns a snapshot of the controller state.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Upstream:     c.name,
		CurrentRate:  c.currentRate,
		Tokens:       clamp(c.limiter.TokensAt(time.Now()), 0, float64(c.cfg.BurstAllowance)),
		Burst:        c.cfg.BurstAllowance,
		SuccessCount: c.successCount,
		FailureCount: c.failureCount,
	}
}

func (c *Controller) adjustLocked(factor float64, direction string) {
	old := c.currentRate
	next := clamp(old*factor, c.cfg.MinRate, c.cfg.MaxRate)
	if next == old {
		return
	}

	c.currentRate = next
	c.limiter.SetLimitAt(time.Now(), rate.Limit(next))

	metrics.RecordUpstreamRate(c.name, next)
	metrics.RecordRateAdjustment(c.name, direction)

	if math.Abs(next-old) > logThreshold {
		c.logger.Info("upstream rate adjusted",
			slog.String("upstream", c.name),
			slog.String("direction", direction),
			slog.Float64("from", old),
			slog.Float64("to", next))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

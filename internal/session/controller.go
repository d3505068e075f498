// Package session wires the sampler, the pose model, the angle estimator and
// the repetition state machine for a single exercise session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"backend-pushup/internal/metrics"
	"backend-pushup/internal/pose"
	"backend-pushup/internal/rep"
	"backend-pushup/internal/sampler"
)

var (
	ErrInvalidConfig = errors.New("invalid session config")
	ErrNotRunning    = errors.New("session is not running")
)

// PoseModel maps an admitted frame to the joints it contains. Detect may
// block; the controller never runs two invocations at once.
type PoseModel interface {
	Detect(ctx context.Context, frame pose.Frame) (pose.Observation, error)
}

// Recorder receives the final tally of a session. Failures are logged and
// never retried.
type Recorder interface {
	RecordWorkout(ctx context.Context, reps uint64, at time.Time) error
}

type RecorderFunc func(ctx context.Context, reps uint64, at time.Time) error

func (f RecorderFunc) RecordWorkout(ctx context.Context, reps uint64, at time.Time) error {
	return f(ctx, reps, at)
}

type Decision string

const (
	Admitted  Decision = "admitted"
	Throttled Decision = "throttled"
	Busy      Decision = "busy"
	Stopped   Decision = "stopped"
)

type Config struct {
	MinInterval     time.Duration
	Thresholds      rep.Thresholds
	MinConfidence   float64
	EstimateTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinInterval:     sampler.DefaultMinInterval,
		Thresholds:      rep.DefaultThresholds(),
		MinConfidence:   pose.DefaultMinConfidence,
		EstimateTimeout: 2 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if math.IsNaN(c.MinConfidence) || c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence %.2f outside [0,1]", ErrInvalidConfig, c.MinConfidence)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("%w: min interval must be positive", ErrInvalidConfig)
	}
	if c.EstimateTimeout < 0 {
		return fmt.Errorf("%w: estimate timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Snapshot is a consistent copy of the session state for readers.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Count     uint64    `json:"count"`
	Status    string    `json:"status"`
	State     rep.State `json:"state"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
}

type Option func(*Controller)

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the counting state of one session. All mutation of that
// state happens under mu; estimation runs outside it, at most one at a time.
type Controller struct {
	id        string
	cfg       Config
	model     PoseModel
	sampler   *sampler.Sampler
	recorder  Recorder
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time

	inflight atomic.Bool
	wg       sync.WaitGroup

	mu        sync.Mutex
	state     rep.Session
	running   bool
	recorded  bool
	epoch     uint64
	startedAt time.Time
	runCtx    context.Context
	cancel    context.CancelFunc
}

func New(id string, cfg Config, model PoseModel, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		id:      id,
		cfg:     cfg,
		model:   model,
		sampler: sampler.New(cfg.MinInterval),
		state:   rep.NewSession(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session_id", id)
	return c, nil
}

func (c *Controller) ID() string {
	return c.id
}

// Start resets the counting state and begins a new run. Results of
// estimations submitted in an earlier run are discarded.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if !c.running {
		metrics.SessionStarted()
	}
	c.epoch++
	c.state.Reset()
	c.running = true
	c.recorded = false
	c.startedAt = c.now()
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	c.sampler.Reset()

	c.logger.Info("session started")
	c.notifyLocked()
}

// OnFrame offers a frame for estimation. Frames arriving faster than the
// minimum interval, or while an estimation is in flight, are dropped.
func (c *Controller) OnFrame(frame pose.Frame) Decision {
	decision := c.offer(frame)
	metrics.RecordFrame(string(decision))
	return decision
}

func (c *Controller) offer(frame pose.Frame) Decision {
	c.mu.Lock()
	running, epoch, ctx := c.running, c.epoch, c.runCtx
	c.mu.Unlock()

	if !running {
		return Stopped
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = c.now()
	}
	if !c.sampler.ShouldProcess(frame.Timestamp) {
		return Throttled
	}
	if !c.inflight.CompareAndSwap(false, true) {
		return Busy
	}

	c.wg.Add(1)
	go c.estimate(ctx, epoch, frame)
	return Admitted
}

func (c *Controller) estimate(ctx context.Context, epoch uint64, frame pose.Frame) {
	defer c.wg.Done()
	defer c.inflight.Store(false)

	if c.cfg.EstimateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.EstimateTimeout)
		defer cancel()
	}

	started := time.Now()
	obs, err := c.model.Detect(ctx, frame)
	metrics.RecordEstimate(time.Since(started).Seconds())

	sig := pose.Indeterminate(pose.ReasonEstimationError)
	if err != nil {
		c.logger.Debug("pose model failed", "error", err)
	} else {
		sig = pose.Estimate(obs, c.cfg.MinConfidence)
	}

	if !c.apply(epoch, sig) {
		c.logger.Debug("discarding late estimation result", "signal", sig.String())
	}
}

// OnSample runs an already estimated observation through the estimator and
// state machine.
func (c *Controller) OnSample(obs pose.Observation) (Snapshot, error) {
	sig := pose.Estimate(obs, c.cfg.MinConfidence)

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	if !c.apply(epoch, sig) {
		return c.Snapshot(), ErrNotRunning
	}
	return c.Snapshot(), nil
}

func (c *Controller) apply(epoch uint64, sig pose.Signal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.epoch != epoch {
		return false
	}

	before := c.state.Count
	rep.Transition(sig, &c.state, c.cfg.Thresholds)

	if sig.IsMeasured() {
		metrics.RecordSignal("measured")
	} else {
		metrics.RecordSignal(string(sig.Reason))
	}
	if c.state.Count > before {
		metrics.RecordRep()
	}

	c.notifyLocked()
	return true
}

// Stop ends the run and returns the count accumulated since Start. It does
// not reset the state and is safe to call repeatedly. The first Stop of a
// run hands a non-zero count to the recorder.
func (c *Controller) Stop(ctx context.Context) uint64 {
	c.mu.Lock()
	count := c.state.Count
	if !c.running {
		c.mu.Unlock()
		return count
	}
	c.running = false
	c.epoch++
	if c.cancel != nil {
		c.cancel()
	}
	record := count > 0 && !c.recorded
	c.recorded = true
	at := c.now()
	c.mu.Unlock()

	metrics.SessionStopped()
	c.logger.Info("session stopped", "reps", count)

	if record && c.recorder != nil {
		if err := c.recorder.RecordWorkout(ctx, count, at); err != nil {
			c.logger.Error("record workout failed", "reps", count, "error", err)
		}
	}
	return count
}

// Wait blocks until any in-flight estimation has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Count
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: c.id,
		Count:     c.state.Count,
		Status:    c.state.Status,
		State:     c.state.State,
		Running:   c.running,
		StartedAt: c.startedAt,
	}
}

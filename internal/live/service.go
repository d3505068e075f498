// Package live hosts the counting sessions of connected athletes.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backend-pushup/internal/pose"
	"backend-pushup/internal/session"
	"backend-pushup/internal/stream"
	"backend-pushup/internal/workout"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotOwner        = errors.New("session belongs to another athlete")
)

type entry struct {
	ctrl      *session.Controller
	athleteID string
}

type Option func(*Service)

// WithEmitter adds an observer to every session started afterwards.
func WithEmitter(o session.Observer) Option {
	return func(s *Service) { s.emitter = o }
}

// WithModel replaces the keypoint payload decoder used for frames.
func WithModel(m session.PoseModel) Option {
	return func(s *Service) { s.model = m }
}

type Service struct {
	cfg      session.Config
	hub      *stream.Hub
	cache    *SnapshotCache
	workouts *workout.Service
	emitter  session.Observer
	model    session.PoseModel
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewService(cfg session.Config, hub *stream.Hub, cache *SnapshotCache, workouts *workout.Service, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		hub:      hub,
		cache:    cache,
		workouts: workouts,
		model:    pose.NewPayloadDecoder(),
		logger:   slog.Default().With("component", "live"),
		sessions: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) StartSession(_ context.Context, athleteID string, req StartRequest) (Started, error) {
	cfg := s.cfg
	if req.Thresholds != nil {
		cfg.Thresholds = *req.Thresholds
	}
	if req.MinConfidence != nil {
		cfg.MinConfidence = *req.MinConfidence
	}

	id := uuid.NewString()
	opts := []session.Option{session.WithLogger(s.logger)}
	for _, o := range s.observers() {
		opts = append(opts, session.WithObserver(o))
	}
	if s.workouts != nil {
		opts = append(opts, session.WithRecorder(s.workouts.Recorder(athleteID, id)))
	}

	ctrl, err := session.New(id, cfg, s.model, opts...)
	if err != nil {
		return Started{}, err
	}

	s.mu.Lock()
	s.sessions[id] = &entry{ctrl: ctrl, athleteID: athleteID}
	s.mu.Unlock()

	ctrl.Start()
	return Started{ID: id, AthleteID: athleteID, Snapshot: ctrl.Snapshot()}, nil
}

func (s *Service) SubmitFrame(athleteID, sessionID string, frame pose.Frame) (FrameResult, error) {
	e, err := s.owned(athleteID, sessionID)
	if err != nil {
		return FrameResult{}, err
	}
	return FrameResult{SessionID: sessionID, Decision: e.ctrl.OnFrame(frame)}, nil
}

func (s *Service) SubmitObservation(athleteID, sessionID string, obs pose.Observation) (session.Snapshot, error) {
	e, err := s.owned(athleteID, sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return e.ctrl.OnSample(obs)
}

// StopSession ends the session, records a non-zero count as a workout and
// tells subscribers the session is over.
func (s *Service) StopSession(ctx context.Context, athleteID, sessionID string) (StopResult, error) {
	if _, err := s.owned(athleteID, sessionID); err != nil {
		return StopResult{}, err
	}

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return StopResult{}, ErrSessionNotFound
	}

	return s.stop(ctx, e), nil
}

func (s *Service) stop(ctx context.Context, e *entry) StopResult {
	count := e.ctrl.Stop(ctx)
	snap := e.ctrl.Snapshot()
	now := time.Now()

	final := session.Update{
		SessionID: snap.SessionID,
		Count:     count,
		Status:    StatusEnded,
		State:     snap.State,
		StartedAt: snap.StartedAt,
		At:        now,
	}
	for _, o := range s.observers() {
		o.OnUpdate(final)
	}
	return StopResult{SessionID: snap.SessionID, FinalCount: count, StoppedAt: now}
}

// Snapshot reads a live session first and falls back to the shared cache,
// which also covers sessions hosted by other instances.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (session.Snapshot, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e.ctrl.Snapshot(), nil
	}
	if s.cache == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	return s.cache.Get(ctx, sessionID)
}

// SnapshotJSON adapts Snapshot for the websocket greeting.
func (s *Service) SnapshotJSON(sessionID string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	snap, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, false
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (s *Service) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops every live session so final counts are recorded, then
// flushes the snapshot cache.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		res := s.stop(ctx, e)
		e.ctrl.Wait()
		s.logger.Info("session closed on shutdown", "session_id", res.SessionID, "reps", res.FinalCount)
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("close live sessions: %w", err)
	}
	return nil
}

func (s *Service) owned(athleteID, sessionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.athleteID != athleteID {
		return nil, ErrNotOwner
	}
	return e, nil
}

func (s *Service) observers() []session.Observer {
	var obs []session.Observer
	if s.hub != nil {
		obs = append(obs, s.hub)
	}
	if s.cache != nil {
		obs = append(obs, s.cache)
	}
	if s.emitter != nil {
		obs = append(obs, s.emitter)
	}
	return obs
}

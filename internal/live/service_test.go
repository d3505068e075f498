package live

import (
	"context"
	"math"
	"strconv"
	"testing"
	"time"

	"backend-pushup/internal/pose"
	"backend-pushup/internal/rep"
	"backend-pushup/internal/session"
	"backend-pushup/internal/stream"
	"backend-pushup/internal/workout"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func armAt(deg float64) pose.Observation {
	// offset keeps the truncated status on deg despite float error
	rad := (deg + 0.25) * math.Pi / 180
	return pose.Observation{Joints: []pose.JointSample{
		{Name: pose.RightShoulder, Location: pose.Point{X: 0.5, Y: 0.8}, Confidence: 0.9},
		{Name: pose.RightElbow, Location: pose.Point{X: 0.5, Y: 0.5}, Confidence: 0.9},
		{Name: pose.RightWrist, Location: pose.Point{X: 0.5 + 0.3*math.Sin(rad), Y: 0.5 + 0.3*math.Cos(rad)}, Confidence: 0.9},
	}}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

type collector struct {
	updates chan session.Update
}

func (c *collector) OnUpdate(u session.Update) {
	select {
	case c.updates <- u:
	default:
	}
}

func TestSessionLifecycleRecordsWorkout(t *testing.T) {
	mock := newMock(t)
	svc := NewService(session.DefaultConfig(), nil, nil, workout.NewService(mock))

	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)
	assert.True(t, started.Snapshot.Running)
	assert.Equal(t, rep.StatusDetecting, started.Snapshot.Status)

	for _, deg := range []float64{160, 60, 170, 50, 175} {
		_, err := svc.SubmitObservation("athlete-1", started.ID, armAt(deg))
		require.NoError(t, err)
	}

	mock.ExpectQuery(`INSERT INTO workouts`).
		WithArgs(pgxmock.AnyArg(), "athlete-1", started.ID, 2, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	res, err := svc.StopSession(context.Background(), "athlete-1", started.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.FinalCount)
	assert.Zero(t, svc.Active())
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.StopSession(context.Background(), "athlete-1", started.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStopWithZeroCountRecordsNothing(t *testing.T) {
	mock := newMock(t)
	svc := NewService(session.DefaultConfig(), nil, nil, workout.NewService(mock))

	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)

	res, err := svc.StopSession(context.Background(), "athlete-1", started.ID)
	require.NoError(t, err)
	assert.Zero(t, res.FinalCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOwnershipEnforced(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)
	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)

	_, err = svc.SubmitObservation("athlete-2", started.ID, armAt(60))
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = svc.SubmitFrame("athlete-2", started.ID, pose.Frame{Data: []byte("{}")})
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = svc.StopSession(context.Background(), "athlete-2", started.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Equal(t, 1, svc.Active())

	_, err = svc.SubmitObservation("athlete-1", "missing", armAt(60))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartRejectsInvalidOverrides(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)

	_, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{Thresholds: &rep.Thresholds{Down: 150, Up: 100}})
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	bad := 1.5
	_, err = svc.StartSession(context.Background(), "athlete-1", StartRequest{MinConfidence: &bad})
	assert.ErrorIs(t, err, session.ErrInvalidConfig)
	assert.Zero(t, svc.Active())
}

func TestStartAppliesThresholdOverride(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)
	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{Thresholds: &rep.Thresholds{Down: 70, Up: 160}})
	require.NoError(t, err)

	snap, err := svc.SubmitObservation("athlete-1", started.ID, armAt(80))
	require.NoError(t, err)
	assert.Equal(t, rep.Up, snap.State)
}

func TestFramesFlowThroughDecoder(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)
	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)

	send := func(deg float64, ms int64) session.Decision {
		payload, err := pose.EncodeMsgpack(armAt(deg))
		require.NoError(t, err)
		res, err := svc.SubmitFrame("athlete-1", started.ID, pose.Frame{
			Data:        payload,
			ContentType: pose.ContentTypeMsgpack,
			Timestamp:   time.UnixMilli(ms),
		})
		require.NoError(t, err)
		return res.Decision
	}
	status := func() string {
		snap, err := svc.Snapshot(context.Background(), started.ID)
		require.NoError(t, err)
		return snap.Status
	}

	require.Equal(t, session.Admitted, send(60, 1000))
	require.Eventually(t, func() bool { return status() == "DOWN (60°)" }, time.Second, 5*time.Millisecond)

	assert.Equal(t, session.Throttled, send(170, 1050))

	// the previous estimation may still be releasing its slot
	ms := int64(1100)
	require.Eventually(t, func() bool {
		ms += 100
		return send(170, ms) == session.Admitted
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return status() == "UP (170°) • Rep +1" }, time.Second, 5*time.Millisecond)
}

func TestSnapshotFallsBackToCache(t *testing.T) {
	_, rdb := newRedis(t)
	cache := NewSnapshotCache(rdb, time.Minute)
	svc := NewService(session.DefaultConfig(), nil, cache, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)
	for _, deg := range []float64{60, 170} {
		_, err := svc.SubmitObservation("athlete-1", started.ID, armAt(deg))
		require.NoError(t, err)
	}
	_, err = svc.StopSession(context.Background(), "athlete-1", started.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := svc.Snapshot(context.Background(), started.ID)
		return err == nil && snap.Status == StatusEnded
	}, time.Second, 5*time.Millisecond)

	snap, err := svc.Snapshot(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Count)
	assert.False(t, snap.Running)
	assert.False(t, snap.StartedAt.IsZero())

	_, err = svc.Snapshot(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSnapshotWithoutCache(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)
	_, err := svc.Snapshot(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, ok := svc.SnapshotJSON("unknown")
	assert.False(t, ok)
}

func TestObserversReceiveFinalUpdate(t *testing.T) {
	obs := &collector{updates: make(chan session.Update, 16)}
	hub := stream.NewHub(nil)
	svc := NewService(session.DefaultConfig(), hub, nil, nil, WithEmitter(obs))

	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)
	client := hub.Register(started.ID)
	defer hub.Unregister(client)

	_, err = svc.StopSession(context.Background(), "athlete-1", started.ID)
	require.NoError(t, err)

	var last session.Update
	for len(obs.updates) > 0 {
		last = <-obs.updates
	}
	assert.Equal(t, StatusEnded, last.Status)

	select {
	case msg := <-client.Send:
		assert.Contains(t, string(msg), StatusEnded)
	case <-time.After(time.Second):
		t.Fatal("expected final update on the hub")
	}
}

func TestSnapshotJSON(t *testing.T) {
	svc := NewService(session.DefaultConfig(), nil, nil, nil)
	started, err := svc.StartSession(context.Background(), "athlete-1", StartRequest{})
	require.NoError(t, err)

	payload, ok := svc.SnapshotJSON(started.ID)
	require.True(t, ok)
	assert.Contains(t, string(payload), `"session_id":"`+started.ID+`"`)
	assert.Contains(t, string(payload), `"running":true`)
}

func TestCloseStopsAllSessions(t *testing.T) {
	mock := newMock(t)
	svc := NewService(session.DefaultConfig(), nil, nil, workout.NewService(mock))

	var ids []string
	for i := 0; i < 3; i++ {
		started, err := svc.StartSession(context.Background(), "athlete-"+strconv.Itoa(i), StartRequest{})
		require.NoError(t, err)
		ids = append(ids, started.ID)
	}
	_, err := svc.SubmitObservation("athlete-0", ids[0], armAt(60))
	require.NoError(t, err)
	_, err = svc.SubmitObservation("athlete-0", ids[0], armAt(170))
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO workouts`).
		WithArgs(pgxmock.AnyArg(), "athlete-0", ids[0], 1, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	require.NoError(t, svc.Close(context.Background()))
	assert.Zero(t, svc.Active())
	require.NoError(t, mock.ExpectationsWereMet())
}

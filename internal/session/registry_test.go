package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/gateway"
)

func TestRegistry_StartValidatesKey(t *testing.T) {
	f := newFixture(t)

	key := lecture
	key.Date = "14/03/2024"
	_, _, err := f.reg.Start(context.Background(), key, StartOptions{})
	var kerr *attendance.KeyError
	require.True(t, errors.As(err, &kerr))
	assert.Zero(t, f.rosters.Calls())
}

func TestRegistry_StartUnknownClass(t *testing.T) {
	f := newFixture(t)

	key := lecture
	key.ClassID = "nope"
	_, _, err := f.reg.Start(context.Background(), key, StartOptions{})
	assert.ErrorIs(t, err, database.ErrClassNotFound)
}

func TestRegistry_StartEmptyRoster(t *testing.T) {
	f := newFixture(t)
	f.rosters.SetRoster("EMPTY", nil)

	key := lecture
	key.ClassID = "EMPTY"
	_, _, err := f.reg.Start(context.Background(), key, StartOptions{})
	assert.ErrorIs(t, err, attendance.ErrEmptyRoster)
	var inv *attendance.InvariantError
	assert.True(t, errors.As(err, &inv))
}

func TestRegistry_ResumeActiveSession(t *testing.T) {
	f := newFixture(t)
	first := f.start(t)

	// Class type and faculty display name do not take part in the slot.
	key := lecture
	key.ClassType = "lab"
	key.FacultyName = "  Alan Turing "
	second, created, err := f.reg.Start(context.Background(), key, StartOptions{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.rosters.Calls())
}

func TestRegistry_Supersede(t *testing.T) {
	f := newFixture(t)
	first := f.start(t)

	second, created, err := f.reg.Start(context.Background(), lecture, StartOptions{Supersede: true})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, StateClosed, first.State())
	assert.False(t, first.Committed())

	got, err := f.reg.Get(first.ID())
	require.NoError(t, err, "superseded sessions stay readable")
	assert.Equal(t, StateClosed, got.State())
}

func TestRegistry_SupersedeWhilePersistingRejected(t *testing.T) {
	f := newFixture(t)
	f.store.Delay = 200 * time.Millisecond
	s := f.start(t)
	_, err := s.SubmitImage(context.Background(), []byte("photo"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Confirm(context.Background(), nil)
	}()

	require.Eventually(t, func() bool { return s.State() == StatePersisting }, time.Second, time.Millisecond)
	_, _, err = f.reg.Start(context.Background(), lecture, StartOptions{Supersede: true})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(), ErrInvalidTransition, "a running commit cannot be cancelled")
	<-done
}

func TestRegistry_CorrectionAfterClose(t *testing.T) {
	f := newFixture(t)
	f.rec.set([]attendance.Detection{{Index: 0, StudentID: "s1", Confidence: 0.9}}, nil)

	first := f.start(t)
	_, err := first.SubmitImage(context.Background(), []byte("photo"))
	require.NoError(t, err)
	_, err = first.Confirm(context.Background(), nil)
	require.NoError(t, err)

	second := f.start(t)
	assert.True(t, second.Snapshot().Correction)

	f.rec.set(nil, nil)
	_, err = second.SubmitImage(context.Background(), []byte("photo"))
	require.NoError(t, err)
	_, err = second.Confirm(context.Background(), nil)
	require.NoError(t, err)

	// The correction overwrote the rows instead of adding new ones.
	records := f.store.Records()
	assert.Len(t, records, len(students))
	for _, rec := range records {
		assert.Equal(t, string(attendance.StatusAbsent), rec.Status)
	}
}

func TestRegistry_CancelledSessionIsNotACorrection(t *testing.T) {
	f := newFixture(t)
	first := f.start(t)
	require.NoError(t, first.Cancel())

	second := f.start(t)
	assert.False(t, second.Snapshot().Correction)
}

func TestRegistry_IndependentKeys(t *testing.T) {
	f := newFixture(t)
	f.rec.block = make(chan struct{})
	f.rec.started = make(chan struct{}, 1)

	blocked := f.start(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = blocked.SubmitImage(context.Background(), []byte("photo"))
	}()
	<-f.rec.started

	other := lecture
	other.Subject = "Databases"
	s, created, err := f.reg.Start(context.Background(), other, StartOptions{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StateAwaitingImage, s.State())
	require.NoError(t, s.Cancel())

	close(f.rec.block)
	<-done
}

func TestRegistry_Get(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	s := f.start(t)
	got, err := f.reg.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	events := s.AddListener()

	f.reg.sweep(time.Now().Add(30 * time.Minute))
	assert.Equal(t, StateAwaitingImage, s.State(), "not idle yet")

	f.reg.sweep(time.Now().Add(2 * time.Hour))
	assert.Equal(t, StateClosed, s.State())

	var last Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, EventCancelled, last.Type)
	assert.Equal(t, "idle timeout", last.Message)

	// Closed sessions are dropped after the retention period.
	f.reg.sweep(time.Now().Add(f.reg.retention + time.Minute))
	_, err := f.reg.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.reg.Len())

	s2 := f.start(t)
	assert.False(t, s2.Snapshot().Correction)
}

func TestRegistry_StopCancelsOpenSessions(t *testing.T) {
	f := newFixture(t)
	f.rec.block = make(chan struct{})
	f.rec.started = make(chan struct{}, 1)
	s := f.start(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitImage(context.Background(), []byte("photo"))
		done <- err
	}()
	<-f.rec.started

	f.reg.Stop()
	assert.ErrorIs(t, <-done, ErrDiscarded)
	assert.Equal(t, StateClosed, s.State())
	close(f.rec.block)
}

func TestNewRegistry_RejectsBadThreshold(t *testing.T) {
	_, err := NewRegistry(Dependencies{
		Roster:     mock.NewMockRosterReader(),
		Images:     stubImages{},
		Recognizer: &fakeRecognizer{},
		Committer:  gateway.New(mock.NewMockAttendanceStore(), 1, nil, nil),
	}, config.PolicyConfig{ConfidenceThreshold: 1.5})
	assert.Error(t, err)

	_, err = NewRegistry(Dependencies{}, config.PolicyConfig{ConfidenceThreshold: 0.4})
	assert.Error(t, err)
}

func TestRegistry_ConcurrentStartsShareOneSession(t *testing.T) {
	f := newFixture(t)

	const n = 8
	ids := make(chan string, n)
	for range n {
		go func() {
			s, _, err := f.reg.Start(context.Background(), lecture, StartOptions{})
			if err != nil {
				ids <- ""
				return
			}
			ids <- s.ID()
		}()
	}

	first := <-ids
	require.NotEmpty(t, first)
	for range n - 1 {
		assert.Equal(t, first, <-ids)
	}
}

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/roster"
)

// Dependencies are the collaborators shared by every session. Logs, Metrics
// and Logger are optional.
type Dependencies struct {
	Roster     roster.Provider
	Images     ImageChecker
	Recognizer Recognizer
	Committer  Committer
	Logs       database.RecognitionLogWriter
	Metrics    *metrics.SessionMetrics
	Logger     *zap.Logger
}

// StartOptions controls what Start does when the lecture already has an
// active session.
type StartOptions struct {
	// Supersede cancels the active session and starts a new one. Without it
	// the active session is resumed.
	Supersede bool
}

// Registry owns all sessions and enforces one active session per lecture.
type Registry struct {
	roster      roster.Provider
	images      ImageChecker
	recognizer  Recognizer
	committer   Committer
	logs        database.RecognitionLogWriter
	threshold   float64
	idleTimeout time.Duration
	retention   time.Duration
	metrics     *metrics.SessionMetrics
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	active   map[string]string // slot -> session id

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry and starts its idle janitor. Call Stop to
// release it.
func NewRegistry(deps Dependencies, policy config.PolicyConfig) (*Registry, error) {
	if err := attendance.ValidateThreshold(policy.ConfidenceThreshold); err != nil {
		return nil, err
	}
	if deps.Roster == nil || deps.Images == nil || deps.Recognizer == nil || deps.Committer == nil {
		return nil, fmt.Errorf("session registry needs a roster, image checker, recognizer and committer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		roster:      deps.Roster,
		images:      deps.Images,
		recognizer:  deps.Recognizer,
		committer:   deps.Committer,
		logs:        deps.Logs,
		threshold:   policy.ConfidenceThreshold,
		idleTimeout: policy.SessionIdleTimeout,
		retention:   constants.ClosedSessionRetention,
		metrics:     deps.Metrics,
		logger:      logger.Named("session"),
		sessions:    make(map[string]*Session),
		active:      make(map[string]string),
		stop:        make(chan struct{}),
	}

	r.wg.Go(func() { r.janitor(constants.JanitorInterval) })
	return r, nil
}

// Start opens a session for the lecture. If the lecture already has an
// active session it is resumed, or cancelled and replaced when
// opts.Supersede is set. A lecture whose previous session committed gets a
// correction session that overwrites the stored records on confirm.
// created is false when an existing session was resumed.
func (r *Registry) Start(ctx context.Context, key attendance.Key, opts StartOptions) (s *Session, created bool, err error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, false, err
	}
	slot := key.Slot()

	if !opts.Supersede {
		if prev := r.activeFor(slot); prev != nil {
			r.logger.Info("resuming session", zap.String("session_id", prev.id), zap.String("slot", slot))
			return prev, false, nil
		}
	}

	students, err := r.roster.GetRoster(ctx, key.ClassID)
	if err != nil {
		return nil, false, fmt.Errorf("load roster of class %s: %w", key.ClassID, err)
	}
	if len(students) == 0 {
		return nil, false, &attendance.InvariantError{Reason: "class " + key.ClassID + " has no students", Err: attendance.ErrEmptyRoster}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	correction := false
	if prev := r.sessions[r.active[slot]]; prev != nil {
		switch state := prev.State(); {
		case state == StateClosed:
			correction = prev.Committed()
		case !opts.Supersede:
			// Another Start for the same lecture won the race.
			return prev, false, nil
		case state == StatePersisting:
			return nil, false, &TransitionError{Op: "supersede", State: state}
		default:
			if err := prev.abort("supersede", "superseded by a new session"); err != nil {
				return nil, false, err
			}
		}
	}

	now := time.Now()
	s = &Session{
		id:         uuid.New().String(),
		key:        key,
		roster:     students,
		correction: correction,
		reg:        r,
		state:      StateAwaitingImage,
		createdAt:  now,
		updatedAt:  now,
	}
	s.logger = r.logger.With(
		zap.String("session_id", s.id),
		zap.String("class_id", key.ClassID),
		zap.String("date", key.Date),
		zap.String("subject", key.Subject),
	)

	r.sessions[s.id] = s
	r.active[slot] = s.id
	r.metrics.ObserveStart()

	s.logger.Info("session started", zap.Int("students", len(students)), zap.Bool("correction", correction))
	return s, true, nil
}

// Get returns the session with the given handle.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Len returns the number of sessions held, closed ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) activeFor(slot string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.sessions[r.active[slot]]
	if s == nil || s.State() == StateClosed {
		return nil
	}
	return s
}

// Stop ends the janitor, cancels every open session and waits for background
// work.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)

		r.mu.RLock()
		open := make([]*Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			open = append(open, s)
		}
		r.mu.RUnlock()

		for _, s := range open {
			if state := s.State(); state != StateClosed && state != StatePersisting {
				_ = s.abort("shut down", "server shutting down")
			}
		}
		r.wg.Wait()
	})
}

func (r *Registry) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

// sweep cancels idle sessions and forgets closed ones after the retention
// period.
func (r *Registry) sweep(now time.Time) {
	var idle []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		state, updated := s.activity()
		switch {
		case state == StateClosed:
			if now.Sub(updated) >= r.retention {
				delete(r.sessions, id)
				if slot := s.key.Slot(); r.active[slot] == id {
					delete(r.active, slot)
				}
			}
		case state == StatePersisting:
			// A commit in progress is never interrupted.
		case r.idleTimeout > 0 && now.Sub(updated) >= r.idleTimeout:
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		if err := s.abort("expire", "idle timeout"); err == nil {
			r.logger.Info("expired idle session", zap.String("session_id", s.id))
		}
	}
}

// Package session implements attendance review sessions: one class photo is
// recognized, reconciled against the roster, reviewed and finally committed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/gateway"
	"github.com/kozaktomas/rollcall/internal/imagecheck"
)

// ImageChecker validates an uploaded photo and prepares it for the recognizer.
type ImageChecker interface {
	Check(data []byte) (*imagecheck.Image, error)
	PrepareUpload(img *imagecheck.Image) (*imagecheck.Image, error)
}

// Recognizer detects faces and matches them to students.
type Recognizer interface {
	DetectAndMatch(ctx context.Context, img *imagecheck.Image) ([]attendance.Detection, error)
}

// Committer persists confirmed decisions.
type Committer interface {
	Commit(ctx context.Context, decisions []attendance.Decision, key attendance.Key, progress gateway.ProgressFunc) (*gateway.CommitResult, error)
}

// Summary counts the outcome of the last recognition run.
type Summary struct {
	FacesDetected  int `json:"faces_detected"`
	Present        int `json:"present"`
	Absent         int `json:"absent"`
	Late           int `json:"late"`
	Unmatched      int `json:"unmatched"`
	Unknown        int `json:"unknown"`
	BelowThreshold int `json:"below_threshold"`
	Superseded     int `json:"superseded"`
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID         string                 `json:"id"`
	Key        attendance.Key         `json:"key"`
	State      State                  `json:"state"`
	Correction bool                   `json:"correction"`
	Decisions  []attendance.Decision  `json:"decisions"`
	Detections []attendance.Detection `json:"detections,omitempty"`
	Unknown    []attendance.Detection `json:"unknown,omitempty"`
	Summary    *Summary               `json:"summary,omitempty"`
	Failed     []gateway.Failure      `json:"failed,omitempty"`
	LastCommit *gateway.CommitResult  `json:"last_commit,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Session is one review session. All methods are safe for concurrent use;
// transitions are serialized by the session mutex and the recognizer and
// store calls run without holding it.
type Session struct {
	EventBroadcaster

	id         string
	key        attendance.Key
	roster     []attendance.Student
	correction bool
	reg        *Registry
	logger     *zap.Logger

	mu             sync.Mutex
	state          State
	decisions      []attendance.Decision
	index          map[string]int
	detections     []attendance.Detection
	reconciliation *attendance.Reconciliation
	failed         []gateway.Failure
	lastCommit     *gateway.CommitResult
	lastErr        error
	committed      bool
	generation     uint64
	cancelRecog    context.CancelFunc
	createdAt      time.Time
	updatedAt      time.Time
}

// ID returns the session handle.
func (s *Session) ID() string {
	return s.id
}

// Key returns the lecture the session records.
func (s *Session) Key() attendance.Key {
	return s.key
}

// Roster returns the students the session reconciles against.
func (s *Session) Roster() []attendance.Student {
	return append([]attendance.Student(nil), s.roster...)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetStatus returns the current state. It lets the SSE stream poll for
// termination.
func (s *Session) GetStatus() State {
	return s.State()
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Decisions returns a copy of the current decision list, in roster order.
func (s *Session) Decisions() []attendance.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]attendance.Decision(nil), s.decisions...)
}

// SubmitImage validates the photo, runs recognition and reconciles the result
// against the roster. An invalid photo leaves the state unchanged. A
// recognizer failure moves the session to Failed, from where another photo
// may be submitted.
func (s *Session) SubmitImage(ctx context.Context, data []byte) (*Snapshot, error) {
	if state := s.State(); state != StateAwaitingImage && state != StateFailed {
		return nil, &TransitionError{Op: "submit an image", State: state}
	}

	img, err := s.reg.images.Check(data)
	if err != nil {
		return nil, err
	}
	upload, err := s.reg.images.PrepareUpload(img)
	if err != nil {
		return nil, &attendance.ValidationError{Field: "image", Reason: "could not be decoded: " + err.Error()}
	}

	s.mu.Lock()
	if s.state != StateAwaitingImage && s.state != StateFailed {
		state := s.state
		s.mu.Unlock()
		return nil, &TransitionError{Op: "submit an image", State: state}
	}
	if s.state == StateFailed {
		s.transition(StateAwaitingImage, Event{Type: EventState, Message: "retrying recognition"})
	}
	recCtx, cancel := context.WithCancel(ctx)
	s.generation++
	gen := s.generation
	s.cancelRecog = cancel
	s.lastErr = nil
	s.transition(StateProcessing, Event{Type: EventState})
	s.mu.Unlock()

	start := time.Now()
	detections, err := s.reg.recognizer.DetectAndMatch(recCtx, upload)
	cancel()
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.state != StateProcessing {
		s.logger.Info("discarding recognition result of an abandoned run",
			zap.String("state", string(s.state)),
			zap.Bool("failed", err != nil),
		)
		return s.snapshotLocked(), ErrDiscarded
	}
	s.cancelRecog = nil

	if err != nil {
		s.lastErr = err
		var recErr *attendance.RecognitionError
		kind := attendance.RecognitionUnavailable
		if errors.As(err, &recErr) {
			kind = recErr.Kind
		}
		s.logger.Warn("recognition failed", zap.String("kind", string(kind)), zap.Error(err))
		s.transition(StateFailed, Event{Type: EventRecognitionFailed, Message: err.Error(), Data: kind})
		return s.snapshotLocked(), err
	}

	rec, err := attendance.Reconcile(s.roster, detections, s.reg.threshold)
	if err != nil {
		s.lastErr = err
		s.logger.Error("reconciliation failed, closing session", zap.Error(err))
		s.closeLocked(Event{Type: EventCancelled, Message: err.Error()})
		return s.snapshotLocked(), err
	}

	s.detections = detections
	s.reconciliation = rec
	s.decisions = rec.Decisions
	s.index = make(map[string]int, len(rec.Decisions))
	for i, d := range rec.Decisions {
		s.index[d.StudentID] = i
	}
	s.failed = nil

	summary := s.summaryLocked()
	s.logger.Info("recognition reconciled",
		zap.Int("faces", summary.FacesDetected),
		zap.Int("present", summary.Present),
		zap.Int("absent", summary.Absent),
		zap.Int("unknown", summary.Unknown),
		zap.Duration("duration", elapsed),
	)
	s.transition(StateReviewing, Event{Type: EventState, Data: summary})
	s.saveRecognitionLog(ctx, summary, elapsed)

	return s.snapshotLocked(), nil
}

// SetStatus changes the status of one student. A change makes the decision
// manual; its confidence and detection linkage are kept. Setting the status
// the decision already has is a no-op.
func (s *Session) SetStatus(studentID string, status attendance.Status) (attendance.Decision, error) {
	if !status.Valid() {
		return attendance.Decision{}, &attendance.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("%q is not one of present, absent, late", status),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return attendance.Decision{}, &TransitionError{Op: "edit a decision", State: s.state}
	}
	i, ok := s.index[studentID]
	if !ok {
		return attendance.Decision{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
	}

	d := &s.decisions[i]
	if d.Status == status {
		return *d, nil
	}
	d.Status = status
	d.Source = attendance.SourceManual
	s.transition(StateReviewing, Event{Type: EventDecisionUpdated, Data: *d})
	return *d, nil
}

// Confirm commits the decisions. When every record is written the session
// closes; otherwise it returns to Reviewing with the failed students flagged
// and Confirm may be called again.
func (s *Session) Confirm(ctx context.Context, progress gateway.ProgressFunc) (*gateway.CommitResult, error) {
	s.mu.Lock()
	if s.state != StateReviewing {
		state := s.state
		s.mu.Unlock()
		return nil, &TransitionError{Op: "confirm", State: state}
	}
	if len(s.decisions) == 0 {
		err := &attendance.InvariantError{Reason: "confirm with an empty decision list"}
		s.lastErr = err
		s.closeLocked(Event{Type: EventCancelled, Message: err.Error()})
		s.mu.Unlock()
		return nil, err
	}
	decisions := append([]attendance.Decision(nil), s.decisions...)
	s.transition(StatePersisting, Event{Type: EventState})
	s.mu.Unlock()

	result, err := s.reg.committer.Commit(ctx, decisions, s.key, func(done, total int) {
		s.SendEvent(Event{
			Type:      EventCommitProgress,
			SessionID: s.id,
			State:     StatePersisting,
			Data:      map[string]int{"done": done, "total": total},
		})
		if progress != nil {
			progress(done, total)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.lastErr = err
		s.transition(StateReviewing, Event{Type: EventCommitPartial, Message: err.Error()})
		return nil, err
	}

	s.lastCommit = result
	if result.OK() {
		s.failed = nil
		s.lastErr = nil
		s.committed = true
		s.logger.Info("attendance confirmed", zap.Int("records", len(result.Succeeded)))
		s.closeLocked(Event{Type: EventCommitted, Data: result})
		return result, nil
	}

	s.failed = result.Failed
	s.lastErr = fmt.Errorf("%d of %d records were not saved", len(result.Failed), len(decisions))
	s.logger.Warn("attendance partially confirmed",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Strings("failed", result.FailedIDs()),
	)
	s.transition(StateReviewing, Event{Type: EventCommitPartial, Message: s.lastErr.Error(), Data: result})
	return result, nil
}

// Cancel discards the session without persisting anything. A running
// recognition call is abandoned and its result will be ignored.
func (s *Session) Cancel() error {
	return s.abort("cancel", "cancelled by reviewer")
}

func (s *Session) abort(op, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePersisting || s.state == StateClosed {
		return &TransitionError{Op: op, State: s.state}
	}
	s.generation++
	if s.cancelRecog != nil {
		s.cancelRecog()
		s.cancelRecog = nil
	}
	s.logger.Info("session cancelled", zap.String("reason", reason))
	s.closeLocked(Event{Type: EventCancelled, Message: reason})
	return nil
}

// Committed reports whether the session closed after a complete commit.
func (s *Session) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// activity returns the state and the time of the last transition.
func (s *Session) activity() (State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.updatedAt
}

// transition must be called with mu held.
func (s *Session) transition(to State, event Event) {
	from := s.state
	if !from.CanTransition(to) {
		// Callers check the state first; reaching this is a programming error.
		panic(fmt.Sprintf("session: illegal transition %s -> %s", from, to))
	}
	s.state = to
	s.updatedAt = time.Now()
	s.reg.metrics.ObserveTransition(string(from), string(to), to.Terminal())

	event.SessionID = s.id
	event.State = to
	s.SendEvent(event)

	if from != to {
		s.logger.Debug("session transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}
}

// closeLocked must be called with mu held.
func (s *Session) closeLocked(event Event) {
	s.transition(StateClosed, event)
	s.closeListeners()
}

func (s *Session) summaryLocked() *Summary {
	if s.reconciliation == nil {
		return nil
	}
	sum := &Summary{
		FacesDetected:  len(s.detections),
		Unmatched:      s.reconciliation.Unmatched,
		Unknown:        len(s.reconciliation.Unknown),
		BelowThreshold: s.reconciliation.BelowThreshold,
		Superseded:     s.reconciliation.Superseded,
	}
	for _, d := range s.decisions {
		switch d.Status {
		case attendance.StatusPresent:
			sum.Present++
		case attendance.StatusAbsent:
			sum.Absent++
		case attendance.StatusLate:
			sum.Late++
		}
	}
	return sum
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		ID:         s.id,
		Key:        s.key,
		State:      s.state,
		Correction: s.correction,
		Decisions:  append([]attendance.Decision{}, s.decisions...),
		Detections: append([]attendance.Detection(nil), s.detections...),
		Summary:    s.summaryLocked(),
		Failed:     append([]gateway.Failure(nil), s.failed...),
		LastCommit: s.lastCommit,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.reconciliation != nil {
		snap.Unknown = append([]attendance.Detection(nil), s.reconciliation.Unknown...)
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// saveRecognitionLog writes the audit entry in the background. Must be called
// with mu held.
func (s *Session) saveRecognitionLog(ctx context.Context, sum *Summary, elapsed time.Duration) {
	if s.reg.logs == nil {
		return
	}
	entry := database.RecognitionLog{
		SessionID:      s.id,
		ClassID:        s.key.ClassID,
		Subject:        s.key.Subject,
		FacultyID:      s.key.FacultyID,
		FacesDetected:  sum.FacesDetected,
		Matched:        sum.Present,
		Unmatched:      sum.Unmatched,
		Unknown:        sum.Unknown,
		BelowThreshold: sum.BelowThreshold,
		ProcessingTime: elapsed,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.RecognitionLogTimeout)
	s.reg.wg.Go(func() {
		defer cancel()
		if err := s.reg.logs.SaveRecognitionLog(ctx, entry); err != nil {
			s.logger.Warn("failed to save recognition log", zap.Error(err))
		}
	})
}

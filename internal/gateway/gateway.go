// Package gateway writes confirmed attendance decisions to the record store.
package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

// DefaultConcurrency is the write cap used when none is configured.
const DefaultConcurrency = 8

// Failure is one student whose record could not be written.
type Failure struct {
	StudentID string                          `json:"student_id"`
	Kind      attendance.PersistenceErrorKind `json:"kind"`
	Reason    string                          `json:"reason"`
}

// CommitResult reports the outcome of every decision of a commit, in
// decision order.
type CommitResult struct {
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
	// Counts by recognition method over the whole decision list.
	FaceRecognition int `json:"face_recognition_count"`
	Manual          int `json:"manual_count"`

	errs []*attendance.PersistenceError
}

// OK reports whether every record was written.
func (r *CommitResult) OK() bool {
	return len(r.Failed) == 0
}

// FailedIDs returns the student ids of the failed records.
func (r *CommitResult) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.StudentID
	}
	return ids
}

// ProgressFunc is called after each record write with the number of finished
// writes. It may be called from several goroutines.
type ProgressFunc func(done, total int)

// Gateway upserts attendance records with bounded concurrency.
type Gateway struct {
	store       database.AttendanceWriter
	concurrency int
	metrics     *metrics.CommitMetrics
	logger      *zap.Logger
}

// New creates a gateway. A non-positive concurrency uses DefaultConcurrency.
func New(store database.AttendanceWriter, concurrency int, m *metrics.CommitMetrics, logger *zap.Logger) *Gateway {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		store:       store,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.Named("gateway"),
	}
}

// Commit writes one record per decision. Writes are independent: a failed
// write never undoes the others, and the per-student outcome is in the result.
// The returned error is reserved for an empty decision list.
func (g *Gateway) Commit(ctx context.Context, decisions []attendance.Decision, key attendance.Key, progress ProgressFunc) (*CommitResult, error) {
	if len(decisions) == 0 {
		return nil, &attendance.InvariantError{Reason: "commit of an empty decision list"}
	}
	start := time.Now()

	errs := make([]error, len(decisions))
	var done atomic.Int64

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, d := range decisions {
		rec := toRecord(d, key)
		eg.Go(func() error {
			errs[i] = g.write(ctx, rec)
			if progress != nil {
				progress(int(done.Add(1)), len(decisions))
			}
			return nil
		})
	}
	_ = eg.Wait() // writers report through errs

	result := &CommitResult{Succeeded: []string{}, Failed: []Failure{}}
	for i, d := range decisions {
		if d.Source.RecognitionMethod() == database.MethodManual {
			result.Manual++
		} else {
			result.FaceRecognition++
		}

		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, d.StudentID)
			g.metrics.ObserveRecord("succeeded")
			continue
		}
		perr := &attendance.PersistenceError{StudentID: d.StudentID, Kind: classify(errs[i]), Err: errs[i]}
		result.Failed = append(result.Failed, Failure{StudentID: perr.StudentID, Kind: perr.Kind, Reason: perr.Err.Error()})
		result.errs = append(result.errs, perr)
		g.metrics.ObserveRecord(string(perr.Kind))
		g.logger.Warn("attendance write failed", zap.Error(perr))
	}
	g.metrics.ObserveCommit(time.Since(start))

	g.logger.Info("attendance committed",
		zap.String("class_id", key.ClassID),
		zap.String("date", key.Date),
		zap.String("subject", key.Subject),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// write upserts one record. A write conflict means a concurrent writer
// created the row first; the record is then retried once as an update.
func (g *Gateway) write(ctx context.Context, rec database.AttendanceRecord) error {
	err := g.store.UpsertAttendance(ctx, rec)
	if !errors.Is(err, database.ErrConflict) {
		return err
	}
	g.metrics.ObserveRetry()
	g.logger.Debug("retrying conflicting write as update", zap.String("student_id", rec.StudentID))
	return g.store.UpdateAttendance(ctx, rec)
}

func toRecord(d attendance.Decision, key attendance.Key) database.AttendanceRecord {
	return database.AttendanceRecord{
		StudentID:         d.StudentID,
		StudentName:       d.StudentName,
		ClassID:           key.ClassID,
		Date:              key.Date,
		Subject:           key.Subject,
		ClassType:         key.ClassType,
		Status:            string(d.Status),
		ConfidenceScore:   d.Confidence,
		RecognitionMethod: d.Source.RecognitionMethod(),
		FacultyID:         key.FacultyID,
		FacultyName:       key.FacultyName,
	}
}

func classify(err error) attendance.PersistenceErrorKind {
	switch {
	case errors.Is(err, database.ErrConflict):
		return attendance.PersistenceConflict
	case errors.Is(err, database.ErrRejected), errors.Is(err, database.ErrNotFound):
		return attendance.PersistenceRejected
	default:
		return attendance.PersistenceUnavailable
	}
}

// Errors returns the failures of a result as PersistenceErrors, in decision
// order. A result that did not come from Commit carries only the reasons.
func (r *CommitResult) Errors() []*attendance.PersistenceError {
	if len(r.errs) == len(r.Failed) {
		return r.errs
	}
	out := make([]*attendance.PersistenceError, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = &attendance.PersistenceError{StudentID: f.StudentID, Kind: f.Kind, Err: errors.New(f.Reason)}
	}
	return out
}

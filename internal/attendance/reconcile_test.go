package attendance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster(ids ...string) []Student {
	students := make([]Student, 0, len(ids))
	for i, id := range ids {
		students = append(students, Student{ID: id, Name: "Student " + id, RollNumber: fmt.Sprintf("R%02d", i+1)})
	}
	return students
}

func match(index int, studentID string, confidence float64) Detection {
	return Detection{Index: index, StudentID: studentID, Confidence: confidence}
}

func decisionFor(t *testing.T, r *Reconciliation, studentID string) Decision {
	t.Helper()
	for _, d := range r.Decisions {
		if d.StudentID == studentID {
			return d
		}
	}
	require.FailNowf(t, "missing decision", "no decision for %s", studentID)
	return Decision{}
}

func TestReconcile_SinglePresent(t *testing.T) {
	r, err := Reconcile(roster("A", "B", "C"), []Detection{match(0, "A", 0.6)}, 0.4)
	require.NoError(t, err)
	require.Len(t, r.Decisions, 3)

	a := decisionFor(t, r, "A")
	assert.Equal(t, StatusPresent, a.Status)
	assert.Equal(t, SourceAutoDetected, a.Source)
	require.NotNil(t, a.Confidence)
	assert.InDelta(t, 0.6, *a.Confidence, 1e-9)
	require.NotNil(t, a.DetectionIndex)
	assert.Equal(t, 0, *a.DetectionIndex)

	for _, id := range []string{"B", "C"} {
		d := decisionFor(t, r, id)
		assert.Equal(t, StatusAbsent, d.Status)
		assert.Equal(t, SourceAutoDetected, d.Source)
		assert.Nil(t, d.Confidence)
		assert.Nil(t, d.DetectionIndex)
	}
}

func TestReconcile_BelowThresholdFallsThrough(t *testing.T) {
	detections := []Detection{match(0, "A", 0.3), match(1, "A", 0.5)}

	r, err := Reconcile(roster("A", "B"), detections, 0.4)
	require.NoError(t, err)

	a := decisionFor(t, r, "A")
	assert.Equal(t, StatusPresent, a.Status)
	assert.InDelta(t, 0.5, *a.Confidence, 1e-9)
	assert.Equal(t, 1, *a.DetectionIndex)
	assert.Equal(t, StatusAbsent, decisionFor(t, r, "B").Status)
	assert.Equal(t, 1, r.BelowThreshold)
}

func TestReconcile_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		expected   Status
	}{
		{name: "exactly threshold", confidence: 0.4, expected: StatusPresent},
		{name: "just below", confidence: 0.3999999, expected: StatusAbsent},
		{name: "above", confidence: 0.41, expected: StatusPresent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Reconcile(roster("A"), []Detection{match(0, "A", tt.confidence)}, 0.4)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r.Decisions[0].Status)
		})
	}
}

func TestReconcile_DuplicateMatchKeepsHighest(t *testing.T) {
	detections := []Detection{match(0, "S", 0.6), match(1, "S", 0.8)}

	r, err := Reconcile(roster("S"), detections, 0.4)
	require.NoError(t, err)

	s := r.Decisions[0]
	assert.InDelta(t, 0.8, *s.Confidence, 1e-9)
	assert.Equal(t, 1, *s.DetectionIndex)
	assert.Equal(t, 1, r.Superseded)
}

func TestReconcile_DuplicateTieKeepsFirst(t *testing.T) {
	detections := []Detection{match(4, "S", 0.7), match(9, "S", 0.7)}

	r, err := Reconcile(roster("S"), detections, 0.4)
	require.NoError(t, err)
	assert.Equal(t, 4, *r.Decisions[0].DetectionIndex)
}

func TestReconcile_NoDetectionsAllAbsent(t *testing.T) {
	r, err := Reconcile(roster("A", "B", "C"), nil, 0.4)
	require.NoError(t, err)
	require.Len(t, r.Decisions, 3)
	for _, d := range r.Decisions {
		assert.Equal(t, StatusAbsent, d.Status)
		assert.Nil(t, d.Confidence)
	}
	assert.Equal(t, 0, r.Present())
}

func TestReconcile_UnknownIdentitiesIgnored(t *testing.T) {
	detections := []Detection{
		match(0, "stranger", 0.99),
		match(1, "B", 0.9),
		{Index: 2}, // unmatched face
	}

	r, err := Reconcile(roster("A", "B"), detections, 0.4)
	require.NoError(t, err)
	require.Len(t, r.Decisions, 2)
	require.Len(t, r.Unknown, 1)
	assert.Equal(t, "stranger", r.Unknown[0].StudentID)
	assert.Equal(t, 1, r.Unmatched)
	assert.Equal(t, StatusAbsent, decisionFor(t, r, "A").Status)
	assert.Equal(t, StatusPresent, decisionFor(t, r, "B").Status)
}

func TestReconcile_RosterOrder(t *testing.T) {
	detections := []Detection{match(0, "C", 0.9), match(1, "A", 0.9), match(2, "B", 0.9)}

	r, err := Reconcile(roster("B", "C", "A"), detections, 0.4)
	require.NoError(t, err)

	var order []string
	for _, d := range r.Decisions {
		order = append(order, d.StudentID)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
}

func TestReconcile_CoverageForArbitraryDetections(t *testing.T) {
	students := roster("s1", "s2", "s3", "s4", "s5", "s6")
	detectionSets := [][]Detection{
		nil,
		{match(0, "s1", 1)},
		{match(0, "s1", 0.1), match(1, "s1", 0.2), match(2, "s1", 0.95)},
		{match(0, "x", 0.9), match(1, "y", 0.9), {Index: 2}, {Index: 3}},
		{match(0, "s2", 0.5), match(1, "s3", 0.5), match(2, "s4", 0.5), match(3, "s5", 0.5), match(4, "s6", 0.5), match(5, "s1", 0.5)},
	}

	for i, detections := range detectionSets {
		t.Run(fmt.Sprintf("set %d", i), func(t *testing.T) {
			r, err := Reconcile(students, detections, 0.4)
			require.NoError(t, err)
			require.Len(t, r.Decisions, len(students))

			seen := make(map[string]int)
			for j, d := range r.Decisions {
				seen[d.StudentID]++
				assert.Equal(t, students[j].ID, d.StudentID)
				assert.True(t, d.Status.Valid())
			}
			for _, s := range students {
				assert.Equal(t, 1, seen[s.ID], "student %s", s.ID)
			}
		})
	}
}

func TestReconcile_EmptyRoster(t *testing.T) {
	_, err := Reconcile(nil, []Detection{match(0, "A", 0.9)}, 0.4)
	require.Error(t, err)

	var invErr *InvariantError
	assert.True(t, errors.As(err, &invErr))
	assert.True(t, errors.Is(err, ErrEmptyRoster))
}

func TestReconcile_DuplicateRosterEntry(t *testing.T) {
	students := []Student{{ID: "A"}, {ID: "A"}}

	_, err := Reconcile(students, nil, 0.4)

	var invErr *InvariantError
	require.True(t, errors.As(err, &invErr))
	assert.Contains(t, invErr.Reason, "listed twice")
}

func TestReconcile_InvalidThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, 1.1} {
		_, err := Reconcile(roster("A"), nil, threshold)
		assert.Error(t, err, "threshold %v", threshold)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
		wantErr  bool
	}{
		{input: "present", expected: StatusPresent},
		{input: " LATE ", expected: StatusLate},
		{input: "Absent", expected: StatusAbsent},
		{input: "excused", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSource_RecognitionMethod(t *testing.T) {
	assert.Equal(t, "face_recognition", SourceAutoDetected.RecognitionMethod())
	assert.Equal(t, "manual", SourceManual.RecognitionMethod())
}

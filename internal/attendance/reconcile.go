package attendance

import (
	"fmt"
	"math"
)

// DefaultConfidenceThreshold is used when no threshold is configured.
const DefaultConfidenceThreshold = 0.4

// Reconciliation is the outcome of matching detections against a roster.
type Reconciliation struct {
	// Decisions holds exactly one decision per roster student, in roster order.
	Decisions []Decision
	// Unknown holds matched detections whose student is not on the roster.
	Unknown []Detection
	// Unmatched counts faces the recognizer could not identify.
	Unmatched int
	// BelowThreshold counts roster matches rejected by the confidence threshold.
	BelowThreshold int
	// Superseded counts extra detections for a student that lost to a
	// higher-confidence detection of the same student.
	Superseded int
}

// Present returns the number of decisions marked present.
func (r *Reconciliation) Present() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Status == StatusPresent {
			n++
		}
	}
	return n
}

// ValidateThreshold checks that a confidence threshold lies in [0,1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("confidence threshold %v out of range [0,1]", threshold)
	}
	return nil
}

// Reconcile turns recognizer detections into a complete decision list for roster.
//
// A detection marks its student present only when its confidence is at least
// threshold. When several detections match the same student the highest
// confidence wins, the earliest detection on a tie. Students without a
// qualifying detection are absent. Detections for students outside the
// roster are reported in Unknown and never produce a decision.
func Reconcile(roster []Student, detections []Detection, threshold float64) (*Reconciliation, error) {
	if len(roster) == 0 {
		return nil, &InvariantError{Reason: "nothing to reconcile", Err: ErrEmptyRoster}
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, &InvariantError{Reason: "bad threshold", Err: err}
	}

	onRoster := make(map[string]struct{}, len(roster))
	for _, s := range roster {
		if s.ID == "" {
			return nil, &InvariantError{Reason: "roster entry without student id"}
		}
		if _, dup := onRoster[s.ID]; dup {
			return nil, &InvariantError{Reason: fmt.Sprintf("student %s listed twice on roster", s.ID)}
		}
		onRoster[s.ID] = struct{}{}
	}

	result := &Reconciliation{}
	best := make(map[string]int, len(detections)) // student id -> index into detections

	for i, det := range detections {
		if !det.Matched() {
			result.Unmatched++
			continue
		}
		if _, ok := onRoster[det.StudentID]; !ok {
			result.Unknown = append(result.Unknown, det)
			continue
		}
		if math.IsNaN(det.Confidence) || det.Confidence < threshold {
			result.BelowThreshold++
			continue
		}
		prev, seen := best[det.StudentID]
		if !seen {
			best[det.StudentID] = i
			continue
		}
		result.Superseded++
		if det.Confidence > detections[prev].Confidence {
			best[det.StudentID] = i
		}
	}

	result.Decisions = make([]Decision, 0, len(roster))
	for _, s := range roster {
		d := Decision{
			StudentID:   s.ID,
			StudentName: s.Name,
			RollNumber:  s.RollNumber,
			Status:      StatusAbsent,
			Source:      SourceAutoDetected,
		}
		if i, ok := best[s.ID]; ok {
			confidence := detections[i].Confidence
			index := detections[i].Index
			d.Status = StatusPresent
			d.Confidence = &confidence
			d.DetectionIndex = &index
		}
		result.Decisions = append(result.Decisions, d)
	}

	if len(result.Decisions) != len(roster) {
		return nil, &InvariantError{Reason: fmt.Sprintf("produced %d decisions for %d students", len(result.Decisions), len(roster))}
	}
	return result, nil
}

// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Session constants
const (
	// JanitorInterval is how often idle sessions are looked for
	JanitorInterval = time.Minute

	// ClosedSessionRetention is how long a closed session stays readable by its handle
	ClosedSessionRetention = 10 * time.Minute

	// RecognitionLogTimeout bounds the audit write after a recognition run
	RecognitionLogTimeout = 5 * time.Second
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

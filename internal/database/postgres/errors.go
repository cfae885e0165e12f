package postgres

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/lib/pq"
)

// classify wraps a driver error with the matching database sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", sentinelFor(err), err)
}

func sentinelFor(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001", "40P01": // unique_violation, serialization_failure, deadlock_detected
			return database.ErrConflict
		}
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection exception, insufficient resources, operator intervention
			return database.ErrUnavailable
		}
		return database.ErrRejected
	}

	// Context expiry and connection failures never reached the table.
	return database.ErrUnavailable
}

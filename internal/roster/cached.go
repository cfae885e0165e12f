package roster

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

// Cached keeps rosters in memory for a fixed TTL. Concurrent misses for the
// same class share one upstream call.
type Cached struct {
	next   Provider
	cache  *cache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewCached wraps next with a TTL cache. A non-positive ttl disables caching.
func NewCached(next Provider, ttl time.Duration, logger *zap.Logger) Provider {
	if ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		next:   next,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.Named("roster"),
	}
}

// GetRoster returns a copy of the cached roster, loading it on a miss.
// Errors and empty rosters are never cached, so a class that is being
// enrolled shows up without waiting for the TTL.
func (c *Cached) GetRoster(ctx context.Context, classID string) ([]attendance.Student, error) {
	if v, ok := c.cache.Get(classID); ok {
		return cloneStudents(v.([]attendance.Student)), nil
	}

	v, err, shared := c.group.Do(classID, func() (any, error) {
		students, err := c.next.GetRoster(ctx, classID)
		if err != nil {
			return nil, err
		}
		if len(students) > 0 {
			c.cache.SetDefault(classID, students)
		}
		return students, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("roster loaded",
		zap.String("class_id", classID),
		zap.Int("students", len(v.([]attendance.Student))),
		zap.Bool("shared", shared),
	)
	return cloneStudents(v.([]attendance.Student)), nil
}

func cloneStudents(students []attendance.Student) []attendance.Student {
	return append([]attendance.Student(nil), students...)
}

package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
)

var classRoster = []attendance.Student{
	{ID: "s1", Name: "Aarav Shah", RollNumber: "01"},
	{ID: "s2", Name: "Zoë Müller", RollNumber: "02"},
	{ID: "s3", Name: "Aarav Patel", RollNumber: "03"},
	{ID: "s4", Name: "Ben Okafor", RollNumber: "04"},
}

func TestFind(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"by id", "s4", "s4"},
		{"by roll number", "02", "s2"},
		{"by exact name", "Ben Okafor", "s4"},
		{"by name without diacritics", "zoe muller", "s2"},
		{"by unique first name", "ben", "s4"},
		{"exact beats prefix", "aarav shah", "s1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Find(classRoster, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestFind_Failures(t *testing.T) {
	_, err := Find(classRoster, "Charlie")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Find(classRoster, "   ")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Find(classRoster, "aarav")
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"s1", "s3"}, amb.StudentIDs)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	upstream := mock.NewMockRosterReader()
	upstream.SetRoster("CS-3A", classRoster)

	p := NewCached(upstream, time.Minute, nil)

	first, err := p.GetRoster(ctx, "CS-3A")
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := p.GetRoster(ctx, "CS-3A")
	require.NoError(t, err)
	assert.Equal(t, "Aarav Shah", second[0].Name, "cached roster must not be shared with callers")
	assert.Equal(t, 1, upstream.Calls())
}

func TestCached_EmptyRosterIsNotCached(t *testing.T) {
	ctx := context.Background()
	upstream := mock.NewMockRosterReader()
	upstream.SetRoster("CS-3A", nil)
	p := NewCached(upstream, time.Minute, nil)

	students, err := p.GetRoster(ctx, "CS-3A")
	require.NoError(t, err)
	assert.Empty(t, students)

	upstream.SetRoster("CS-3A", classRoster)
	students, err = p.GetRoster(ctx, "CS-3A")
	require.NoError(t, err)
	assert.Len(t, students, 4)
	assert.Equal(t, 2, upstream.Calls())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	upstream := mock.NewMockRosterReader()
	p := NewCached(upstream, time.Minute, nil)

	_, err := p.GetRoster(ctx, "missing")
	assert.True(t, errors.Is(err, database.ErrClassNotFound))

	upstream.SetRoster("missing", classRoster[:1])
	students, err := p.GetRoster(ctx, "missing")
	require.NoError(t, err)
	assert.Len(t, students, 1)
}

func TestCached_ConcurrentCallers(t *testing.T) {
	upstream := mock.NewMockRosterReader()
	upstream.SetRoster("CS-3A", classRoster)
	p := NewCached(upstream, time.Minute, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			students, err := p.GetRoster(context.Background(), "CS-3A")
			assert.NoError(t, err)
			assert.Len(t, students, 4)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, upstream.Calls(), 20)
}

func TestNewCached_ZeroTTLDisablesCache(t *testing.T) {
	upstream := mock.NewMockRosterReader()
	p := NewCached(upstream, 0, nil)
	assert.Same(t, upstream, p)
}

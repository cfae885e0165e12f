//go:build integration

package mariadb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"go.uber.org/zap/zaptest"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

const campusSchema = `
CREATE TABLE classes (id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL DEFAULT '');
CREATE TABLE student_records (
	user_id VARCHAR(64) PRIMARY KEY,
	fname VARCHAR(255) NOT NULL,
	lname VARCHAR(255) NOT NULL DEFAULT '',
	roll_number VARCHAR(32) NOT NULL DEFAULT '',
	class_id VARCHAR(64) NOT NULL
);`

func setupMariaDB(t *testing.T) *Pool {
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mariadb:11",
		tcmysql.WithDatabase("campus"),
		tcmysql.WithUsername("campus"),
		tcmysql.WithPassword("campus"),
	)
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "multiStatements=true")
	require.NoError(t, err, "connection string")

	pool, err := NewPool(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err, "create pool")
	t.Cleanup(func() { pool.Close() })

	_, err = pool.db.ExecContext(ctx, campusSchema)
	require.NoError(t, err, "create schema")
	return pool
}

func TestGetRoster(t *testing.T) {
	pool := setupMariaDB(t)
	ctx := context.Background()

	seed := []string{
		`INSERT INTO classes (id, name) VALUES ('ME-2B', 'Mechanical 2B'), ('EMPTY', '')`,
		`INSERT INTO student_records (user_id, fname, lname, roll_number, class_id) VALUES
			('u10', 'Grace', 'Hopper', '10', 'ME-2B'),
			('u2', 'Alan', 'Turing', '2', 'ME-2B'),
			('u1', 'Ada', 'Lovelace', '1', 'ME-2B'),
			('u3', 'Linus', '', '3', 'OTHER')`,
	}
	for _, q := range seed {
		_, err := pool.db.ExecContext(ctx, q)
		require.NoError(t, err, "seed")
	}

	students, err := pool.GetRoster(ctx, "ME-2B")
	require.NoError(t, err)
	require.Len(t, students, 3)
	assert.Equal(t, attendance.Student{ID: "u1", Name: "Ada Lovelace", RollNumber: "1"}, students[0])
	assert.Equal(t, []string{"1", "2", "10"}, []string{students[0].RollNumber, students[1].RollNumber, students[2].RollNumber})

	empty, err := pool.GetRoster(ctx, "EMPTY")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = pool.GetRoster(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrClassNotFound)
}

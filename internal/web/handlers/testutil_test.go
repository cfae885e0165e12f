package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/gateway"
	"github.com/kozaktomas/rollcall/internal/imagecheck"
	"github.com/kozaktomas/rollcall/internal/session"
)

var testLecture = attendance.Key{
	ClassID:     "CS-3A",
	Date:        "2024-03-14",
	Subject:     "Algorithms",
	ClassType:   "lecture",
	FacultyID:   "f1",
	FacultyName: "Dr. Turing",
}

var testStudents = []attendance.Student{
	{ID: "s1", Name: "Alice Novak", RollNumber: "1"},
	{ID: "s2", Name: "Bob Dvořák", RollNumber: "2"},
	{ID: "s3", Name: "Cara Svoboda", RollNumber: "3"},
}

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Policy: config.PolicyConfig{ConfidenceThreshold: 0.4, CommitConcurrency: 2, SessionIdleTimeout: time.Hour},
		Image:  config.ImageConfig{MaxBytes: 1 << 20, MinDimension: 32, MaxDimension: 4000},
		Roster: config.RosterConfig{Source: "postgres"},
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// testRecognizer returns canned detections. Like the real client it fails
// when ctx is already done.
type testRecognizer struct {
	mu         sync.Mutex
	detections []attendance.Detection
	err        error
}

func (f *testRecognizer) DetectAndMatch(ctx context.Context, img *imagecheck.Image) ([]attendance.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, &attendance.RecognitionError{Kind: attendance.RecognitionUnavailable, Message: "request failed", Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detections, f.err
}

type handlerFixture struct {
	cfg        *config.Config
	registry   *session.Registry
	recognizer *testRecognizer
	store      *mock.MockAttendanceStore
	handler    *SessionsHandler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	cfg := testConfig()

	rosters := mock.NewMockRosterReader()
	rosters.SetRoster(testLecture.ClassID, testStudents)
	f := &handlerFixture{
		cfg:        cfg,
		recognizer: &testRecognizer{},
		store:      mock.NewMockAttendanceStore(),
	}

	reg, err := session.NewRegistry(session.Dependencies{
		Roster:     rosters,
		Images:     imagecheck.New(cfg.Image),
		Recognizer: f.recognizer,
		Committer:  gateway.New(f.store, cfg.Policy.CommitConcurrency, nil, nil),
		Logger:     zaptest.NewLogger(t),
	}, cfg.Policy)
	require.NoError(t, err)
	t.Cleanup(reg.Stop)

	f.registry = reg
	f.handler = NewSessionsHandler(reg, cfg.Image.MaxBytes, zaptest.NewLogger(t))
	return f
}

func (f *handlerFixture) startSession(t *testing.T) *session.Session {
	t.Helper()
	s, _, err := f.registry.Start(context.Background(), testLecture, session.StartOptions{})
	require.NoError(t, err)
	return s
}

// testPNG encodes a solid w x h image.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// Package recognizer is the HTTP client of the face recognition service.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/imagecheck"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

const defaultRecognizerURL = "http://localhost:8000"

// maxResponseBytes bounds the body read from the service.
const maxResponseBytes = 8 << 20

// Client detects and matches faces using the recognition service.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	metrics *metrics.RecognizerMetrics
	logger  *zap.Logger
}

// New creates a recognizer client. A nil metrics or logger is allowed.
func New(cfg config.RecognizerConfig, m *metrics.RecognizerMetrics, logger *zap.Logger) *Client {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultRecognizerURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: cfg.Timeout,
		client:  &http.Client{},
		metrics: m,
		logger:  logger.Named("recognizer"),
	}
	if cfg.MaxConcurrent > 0 {
		c.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	if cfg.RatePerMinute > 0 {
		burst := max(cfg.MaxConcurrent, 1)
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), burst)
	}
	return c
}

// DetectAndMatch sends the photo to the service and returns one detection per
// face. Failures are *attendance.RecognitionError.
func (c *Client) DetectAndMatch(ctx context.Context, img *imagecheck.Image) ([]attendance.Detection, error) {
	start := time.Now()
	detections, err := c.detectAndMatch(ctx, img)

	outcome := "ok"
	if err != nil {
		var recErr *attendance.RecognitionError
		if !errors.As(err, &recErr) {
			recErr = &attendance.RecognitionError{Kind: attendance.RecognitionUnavailable, Err: err}
			err = recErr
		}
		outcome = string(recErr.Kind)
	}
	c.metrics.ObserveCall(outcome, time.Since(start), len(detections))

	if err != nil {
		c.logger.Warn("recognition failed", zap.String("outcome", outcome), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("recognition finished",
		zap.Int("faces", len(detections)),
		zap.Duration("duration", time.Since(start)),
	)
	return detections, nil
}

func (c *Client) detectAndMatch(ctx context.Context, img *imagecheck.Image) ([]attendance.Detection, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	body, err := c.postMultipartImage(ctx, "/recognize", img)
	if err != nil {
		return nil, err
	}

	var resp recognizeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &attendance.RecognitionError{
			Kind:    attendance.RecognitionUnavailable,
			Message: "malformed response",
			Err:     err,
		}
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "recognition service reported failure"
		}
		return nil, &attendance.RecognitionError{Kind: attendance.RecognitionUnavailable, Message: msg}
	}

	return c.toDetections(resp.Results, img.Width, img.Height), nil
}

// acquire waits for a concurrency slot and a rate limit token.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	release := func() {}
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, transportError(err, "waiting for a free recognizer slot")
		}
		release = func() { c.sem.Release(1) }
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			release()
			// Wait fails early when the token would arrive after the deadline.
			return nil, &attendance.RecognitionError{
				Kind:    attendance.RecognitionTimeout,
				Message: "recognizer rate limit",
				Err:     err,
			}
		}
	}
	return release, nil
}

// toDetections converts the service payload at the boundary. A match without
// a usable confidence is downgraded to an unmatched face.
func (c *Client) toDetections(results []faceResult, width, height int) []attendance.Detection {
	detections := make([]attendance.Detection, 0, len(results))
	for i, r := range results {
		d := attendance.Detection{
			Index:  i,
			Region: regionFromBBox(r.BBox, width, height),
		}
		if id := r.studentID(); id != "" {
			if r.Confidence != nil && validConfidence(*r.Confidence) {
				d.StudentID = id
				d.Confidence = *r.Confidence
			} else {
				c.logger.Warn("dropping match without valid confidence",
					zap.Int("face", i),
					zap.String("student_id", id),
				)
			}
		}
		detections = append(detections, d)
	}
	return detections
}

func validConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// postMultipartImage posts the image as the "image" form field and returns the
// body of a 200 response.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, img *imagecheck.Image) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeImagePart(writer, "image", "class", img); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return c.postMultipart(ctx, endpoint, writer.FormDataContentType(), &buf)
}

func (c *Client) postMultipart(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req)
}

// writeImagePart adds img as a file part named field.
func writeImagePart(writer *multipart.Writer, field, name string, img *imagecheck.Image) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s.%s"`, field, name, extension(img.Format)))
	h.Set("Content-Type", "image/"+img.Format)
	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("failed to write image data: %w", err)
	}
	return nil
}

// do executes req and maps every failure to a RecognitionError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	status, body, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}
	return body, nil
}

// roundTrip executes req and returns the status and bounded body. Only
// transport failures are errors.
func (c *Client) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, transportError(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, transportError(err, "failed to read response")
	}
	return resp.StatusCode, body, nil
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil {
		switch {
		case er.Detail != "":
			msg = er.Detail
		case er.Message != "":
			msg = er.Message
		}
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}

	kind := attendance.RecognitionUnavailable
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		kind = attendance.RecognitionInvalidImage
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = attendance.RecognitionTimeout
	}
	return &attendance.RecognitionError{
		Kind:    kind,
		Message: fmt.Sprintf("status %d: %s", status, msg),
	}
}

func transportError(err error, msg string) error {
	kind := attendance.RecognitionUnavailable
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = attendance.RecognitionTimeout
	case errors.As(err, &urlErr) && urlErr.Timeout():
		kind = attendance.RecognitionTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = attendance.RecognitionTimeout
	}
	return &attendance.RecognitionError{Kind: kind, Message: msg, Err: err}
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

// TrainingStatus asks the service whether a student has enrolled face data.
func (c *Client) TrainingStatus(ctx context.Context, studentID string) (*TrainingStatus, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/students/" + url.PathEscape(studentID) + "/face-training-status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var status TrainingStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &attendance.RecognitionError{
			Kind:    attendance.RecognitionUnavailable,
			Message: "malformed training status",
			Err:     err,
		}
	}
	if status.StudentID == "" {
		status.StudentID = studentID
	}
	return &status, nil
}

// TrainStudent enrolls a student's face from one or more portraits. The
// service keeps one embedding per student, so enrolling again replaces it.
func (c *Client) TrainStudent(ctx context.Context, info StudentInfo, images []*imagecheck.Image) (*TrainingResult, error) {
	if len(images) == 0 {
		return nil, &attendance.ValidationError{Field: "images", Reason: "no images provided for training"}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	studentData, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode student data: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("student_data", string(studentData)); err != nil {
		return nil, fmt.Errorf("failed to write student data: %w", err)
	}
	for i, img := range images {
		if err := writeImagePart(writer, "images", fmt.Sprintf("face_%d", i+1), img); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	start := time.Now()
	body, err := c.postMultipart(ctx, "/train-student", writer.FormDataContentType(), &buf)
	if err != nil {
		c.logger.Warn("face training failed", zap.String("student_id", info.StudentID), zap.Error(err))
		return nil, err
	}

	var result TrainingResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &attendance.RecognitionError{
			Kind:    attendance.RecognitionUnavailable,
			Message: "malformed training response",
			Err:     err,
		}
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "training rejected by the recognition service"
		}
		return nil, &attendance.RecognitionError{Kind: attendance.RecognitionInvalidImage, Message: msg}
	}
	if result.StudentID == "" {
		result.StudentID = info.StudentID
	}

	c.logger.Info("student face enrolled",
		zap.String("student_id", info.StudentID),
		zap.Int("images", len(images)),
		zap.Int("images_processed", result.ImagesProcessed),
		zap.Duration("duration", time.Since(start)),
	)
	return &result, nil
}

// DeleteFaceData removes a student's enrolled face data. ErrFaceDataNotFound
// when the service has none.
func (c *Client) DeleteFaceData(ctx context.Context, studentID string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/students/" + url.PathEscape(studentID) + "/face-data"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	status, body, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		c.logger.Info("student face data deleted", zap.String("student_id", studentID))
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("student %s: %w", studentID, ErrFaceDataNotFound)
	default:
		return statusError(status, body)
	}
}

// Health checks that the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	_, err = c.do(req)
	return err
}

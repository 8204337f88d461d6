package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/notes-quiz/internal/apperrors"
	"github.com/gokatarajesh/notes-quiz/internal/metrics"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// Config holds connection details for the notes/quiz backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Provider and Model are sent with question generation requests.
	Provider string
	Model    string
}

// Client talks to the backend that parses PDFs, summarizes notes, generates
// quizzes and grades answers.
type Client struct {
	httpClient *http.Client
	config     Config
	base       string
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewClient(cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = "heuristic"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config:  cfg,
		base:    strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger.With().Str("component", "remote").Logger(),
		metrics: m,
	}
}

// form builds a multipart body. Fields are written in call order.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) file(field, name, contentType string, data []byte) {
	if f.err != nil {
		return
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(data)
}

func (f *form) finish() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, op, path, generic string, f *form, out any) error {
	body, contentType, err := f.finish()
	if err != nil {
		return fmt.Errorf("build %s form: %w", op, err)
	}
	return c.post(ctx, op, path, generic, body, contentType, out)
}

func (c *Client) postForm(ctx context.Context, op, path, generic string, values url.Values, out any) error {
	return c.post(ctx, op, path, generic, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", out)
}

// post sends one request and decodes a 2xx JSON body into out. Every failure
// is returned as an UpstreamError carrying the backend's detail when present.
func (c *Client) post(ctx context.Context, op, path, generic string, body io.Reader, contentType string, out any) error {
	if c.base == "" {
		return &apperrors.UpstreamError{Service: op, Message: generic, Err: fmt.Errorf("backend endpoint not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return &apperrors.UpstreamError{Service: op, Message: generic, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(op, "error", started)
		c.logger.Warn().Err(err).Str("operation", op).Msg("backend request failed")
		return &apperrors.UpstreamError{Service: op, Message: generic, Err: err}
	}
	defer resp.Body.Close()
	c.metrics.ObserveUpstream(op, strconv.Itoa(resp.StatusCode), started)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &apperrors.UpstreamError{Service: op, Status: resp.StatusCode, Message: generic, Err: err}
	}

	if resp.StatusCode >= 300 {
		msg := detailMessage(data, generic)
		c.logger.Warn().Str("operation", op).Int("status", resp.StatusCode).Str("detail", msg).Msg("backend returned error")
		return &apperrors.UpstreamError{Service: op, Status: resp.StatusCode, Message: msg}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &apperrors.UpstreamError{Service: op, Status: resp.StatusCode, Message: generic, Err: fmt.Errorf("decode %s response: %w", op, err)}
	}
	return nil
}

// detailMessage extracts a string "detail" (or "error") from an error body.
func detailMessage(body []byte, generic string) string {
	var payload struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return generic
	}
	for _, v := range []any{payload.Detail, payload.Error} {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return generic
}

func boolField(b bool) string {
	return strconv.FormatBool(b)
}

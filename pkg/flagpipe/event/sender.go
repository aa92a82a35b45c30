package event

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Schema version of the event payload format, sent with every batch.
const currentEventSchema = "4"

// maxRateLimitWait caps how long a rate-limit reset hint can delay the
// retry; hints beyond this are treated as clock skew and ignored.
const maxRateLimitWait = 10 * time.Second

// SenderResult is the outcome of one delivery attempt, passed to the
// success callback.
type SenderResult struct {
	// Success is true when the batch was accepted.
	Success bool

	// MustShutDown is true when the response proves the credential is
	// invalid; the pipeline stops sending permanently.
	MustShutDown bool

	// TimeFromServer is the server's clock from the Date header, zero when
	// absent or unparsable.
	TimeFromServer time.Time

	// RateLimitReset is the parsed rate-limit reset hint, zero when absent.
	RateLimitReset time.Time
}

// EventSender delivers one serialized batch.
type EventSender interface {
	// Send performs the delivery of payload containing eventCount events.
	Send(payload []byte, eventCount int) SenderResult
}

// HTTPSender posts event batches to the events endpoint.
//
// One failed attempt is retried exactly once when the failure is transient
// (429 or 5xx); anything else gives up immediately. A 401 or 403 marks the
// result MustShutDown.
type HTTPSender struct {
	client     *http.Client
	endpoint   string
	credential string
	compress   bool
	retryDelay time.Duration
	logger     *slog.Logger
}

// HTTPSenderOption configures an HTTPSender.
type HTTPSenderOption func(*HTTPSender)

// WithHTTPClient sets the HTTP client. Default: a client with a 10s timeout.
func WithHTTPClient(client *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.client = client
	}
}

// WithCompression enables gzip compression of payloads.
func WithCompression(enabled bool) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.compress = enabled
	}
}

// WithRetryDelay sets the delay before the single retry. Default: 1s.
func WithRetryDelay(d time.Duration) HTTPSenderOption {
	return func(s *HTTPSender) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithSenderLogger sets the logger. Default: no logging.
func WithSenderLogger(logger *slog.Logger) HTTPSenderOption {
	return func(s *HTTPSender) {
		s.logger = logger
	}
}

// NewHTTPSender creates a sender for the given endpoint and credential.
func NewHTTPSender(endpoint, credential string, opts ...HTTPSenderOption) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, &ConfigError{Field: "endpoint", Message: "events endpoint must not be empty"}
	}
	if credential == "" {
		return nil, &ConfigError{Field: "credential", Message: "credential must not be empty"}
	}

	s := &HTTPSender{
		client:     &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		credential: credential,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send implements EventSender.
func (s *HTTPSender) Send(payload []byte, eventCount int) SenderResult {
	body := payload
	compressed := false
	if s.compress {
		gz, err := gzipPayload(payload)
		if err != nil {
			// Compression failing is not worth losing the batch over.
			s.logWarn("payload compression failed, sending uncompressed",
				slog.String("error", err.Error()))
		} else {
			body = gz
			compressed = true
		}
	}

	// The payload ID stays stable across the retry so the server can
	// deduplicate a batch it already accepted.
	payloadID := uuid.New().String()

	var result SenderResult
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryWait(result))
		}

		resp, err := s.post(body, payloadID, compressed)
		if err != nil {
			s.logWarn("event delivery failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			result = SenderResult{}
			continue
		}

		result = parseResponse(resp)
		resp.Body.Close()

		if result.Success || result.MustShutDown {
			return result
		}
		if !isRetryableStatus(resp.StatusCode) {
			s.logWarn("event delivery rejected",
				slog.Int("status", resp.StatusCode))
			return result
		}
		s.logWarn("event delivery failed, will retry once",
			slog.Int("status", resp.StatusCode),
			slog.Int("events", eventCount))
	}

	return result
}

// retryWait picks the delay before the retry, honoring a sane rate-limit
// reset hint over the fixed delay.
func (s *HTTPSender) retryWait(last SenderResult) time.Duration {
	if !last.RateLimitReset.IsZero() {
		wait := time.Until(last.RateLimitReset)
		if wait > 0 && wait <= maxRateLimitWait {
			return wait
		}
	}
	return s.retryDelay
}

func (s *HTTPSender) post(body []byte, payloadID string, compressed bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.credential)
	req.Header.Set("X-Schema-Version", currentEventSchema)
	req.Header.Set("X-Payload-ID", payloadID)
	if compressed {
		req.Header.Set("Content-Encoding", "gzip")
	}
	return s.client.Do(req)
}

func (s *HTTPSender) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// parseResponse classifies a response and extracts delivery metadata.
func parseResponse(resp *http.Response) SenderResult {
	result := SenderResult{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		MustShutDown:   isAuthStatus(resp.StatusCode),
		TimeFromServer: parseServerTime(resp.Header.Get("Date")),
		RateLimitReset: parseRateLimitReset(resp.Header.Get("X-RateLimit-Reset")),
	}
	return result
}

func parseServerTime(header string) time.Time {
	if header == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseRateLimitReset accepts an epoch timestamp in seconds or milliseconds.
func parseRateLimitReset(header string) time.Time {
	if header == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(header, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	// Values this large can only be milliseconds.
	if n > 1e11 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

func gzipPayload(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

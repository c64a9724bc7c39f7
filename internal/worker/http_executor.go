package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 5

	// maxResponseBytes — предел тела ответа analysis engine.
	maxResponseBytes = 1 << 20

	// idempotencyKeyHeader — заголовок, по которому engine распознаёт повтор создания job.
	idempotencyKeyHeader = "Idempotency-Key"
)

// Статусы job во внешнем analysis engine.
const (
	jobStatusQueued    = "queued"
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

// HTTPExecutor — executor, который делегирует работу шага внешнему analysis engine.
//
// Протокол:
//
//	POST {base}/api/v1/steps/{step_id}/jobs   {"run_id", "step_id", "payload"}
//	  → {"job_id": "..."}
//	GET  {base}/api/v1/jobs/{job_id}
//	  → {"status": "running", "progress": 42, "details": {...}, "error": ""}
//
// POST несёт заголовок Idempotency-Key = "{run_id}:{step_id}", одинаковый
// во всех попытках: повтор после сетевой ошибки или 5xx не создаёт второй job.
// Каждый опрос превращается в Tick. completed завершает шаг,
// failed — StepFailure. Сетевые ошибки и 5xx повторяются
// с exponential backoff; 4xx сразу завершают шаг ошибкой.
type HTTPExecutor struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	wait         WaitFunc
}

// HTTPConfig — конфигурация HTTPExecutor.
type HTTPConfig struct {
	// BaseURL — адрес analysis engine.
	BaseURL string

	// Client — HTTP-клиент (default: клиент с таймаутом 30s).
	Client *http.Client

	// PollInterval — интервал опроса job (default: 500ms).
	PollInterval time.Duration

	// MaxAttempts — попыток на один запрос (default: 5).
	MaxAttempts int

	// InitialDelay, MaxDelay — границы backoff между попытками (default: 200ms, 5s).
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Wait — функция ожидания (default: Sleep).
	Wait WaitFunc
}

// NewHTTPExecutor создаёт HTTPExecutor.
func NewHTTPExecutor(cfg HTTPConfig) (*HTTPExecutor, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrHTTPRequest)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrHTTPRequest, err)
	}

	e := &HTTPExecutor{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       cfg.Client,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		wait:         cfg.Wait,
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	if e.initialDelay <= 0 {
		e.initialDelay = 200 * time.Millisecond
	}
	if e.maxDelay <= 0 {
		e.maxDelay = 5 * time.Second
	}
	if e.wait == nil {
		e.wait = Sleep
	}
	return e, nil
}

// jobRequest — тело запроса на создание job.
type jobRequest struct {
	RunID   uuid.UUID               `json:"run_id"`
	StepID  string                  `json:"step_id"`
	Payload *domain.AnalysisPayload `json:"payload,omitempty"`
}

// jobCreated — ответ на создание job.
type jobCreated struct {
	JobID string `json:"job_id"`
}

// jobStatus — состояние job.
type jobStatus struct {
	Status   string         `json:"status"`
	Progress float64        `json:"progress"`
	Details  map[string]int `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Execute создаёт job и опрашивает его до завершения.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request, emit EmitFunc) error {
	var created jobCreated
	body := jobRequest{RunID: req.RunID, StepID: req.Step.ID, Payload: req.Payload}
	path := "/api/v1/steps/" + url.PathEscape(req.Step.ID) + "/jobs"
	key := idempotencyKey(req)
	if err := e.doWithRetry(ctx, http.MethodPost, path, key, body, &created); err != nil {
		return err
	}
	if created.JobID == "" {
		return fmt.Errorf("%w: %s: empty job id", ErrHTTPRequest, req.Step.ID)
	}

	jobPath := "/api/v1/jobs/" + url.PathEscape(created.JobID)
	for {
		var status jobStatus
		if err := e.doWithRetry(ctx, http.MethodGet, jobPath, "", nil, &status); err != nil {
			return err
		}

		switch status.Status {
		case jobStatusCompleted:
			emit(Tick{Progress: 100, Details: status.Details})
			return nil
		case jobStatusFailed:
			msg := status.Error
			if msg == "" {
				msg = "analysis engine reported failure"
			}
			return fmt.Errorf("%w: %s: %s", ErrStepFailed, req.Step.ID, msg)
		case jobStatusQueued, jobStatusRunning:
			emit(Tick{Progress: status.Progress, Details: status.Details})
		default:
			return fmt.Errorf("%w: %s: unknown job status %q", ErrHTTPRequest, req.Step.ID, status.Status)
		}

		if err := e.wait(ctx, e.pollInterval); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStepCancelled, req.Step.ID, err)
		}
	}
}

// idempotencyKey возвращает ключ создания job для шага в рамках run.
func idempotencyKey(req *Request) string {
	return req.RunID.String() + ":" + req.Step.ID
}

// retryableError — ошибка, после которой запрос можно повторить.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// doWithRetry выполняет запрос, повторяя его при сетевых ошибках и 5xx.
func (e *HTTPExecutor) doWithRetry(ctx context.Context, method, path, key string, body, result any) error {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := e.do(ctx, method, path, key, body, result)
		if err == nil {
			return nil
		}

		var rErr *retryableError
		if !errors.As(err, &rErr) {
			return err
		}
		lastErr = err

		if attempt == e.maxAttempts {
			break
		}

		if err := e.wait(ctx, e.backoff(attempt)); err != nil {
			return fmt.Errorf("%w: %v", ErrStepCancelled, err)
		}
	}

	return fmt.Errorf("%w: %s %s: %v", ErrRetryExhausted, method, path, lastErr)
}

// backoff вычисляет задержку перед повтором: initialDelay * 2^(attempt-1), но не больше maxDelay.
func (e *HTTPExecutor) backoff(attempt int) time.Duration {
	delay := e.initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > e.maxDelay {
			return e.maxDelay
		}
	}
	return min(delay, e.maxDelay)
}

// do выполняет один HTTP-запрос и декодирует JSON-ответ в result.
// Непустой key уходит в заголовке Idempotency-Key.
func (e *HTTPExecutor) do(ctx context.Context, method, path, key string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("%w: %v", ErrHTTPRequest, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return &retryableError{err: fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)}
	}
	if len(respBody) > maxResponseBytes {
		return fmt.Errorf("%w: HTTP %d: response exceeds %d bytes", ErrHTTPRequest, resp.StatusCode, maxResponseBytes)
	}

	if resp.StatusCode >= 500 {
		return &retryableError{err: fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrHTTPRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrHTTPRequest, err)
	}
	return nil
}

// truncate обрезает строку до maxLen байт, не разрезая UTF-8 символы.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}

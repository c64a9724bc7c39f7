package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// CatalogStepResponse — шаг каталога из API.
type CatalogStepResponse struct {
	Index             int                `json:"index"`
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	NominalDurationMs int64              `json:"nominal_duration_ms"`
	Details           []domain.MetricDef `json:"details"`
}

// CatalogResponse — каталог шагов из API.
type CatalogResponse struct {
	Steps             []CatalogStepResponse `json:"steps"`
	NominalDurationMs int64                 `json:"nominal_duration_ms"`
}

// --- Request types ---

// StartRequest — запуск run.
type StartRequest struct {
	Payload *domain.AnalysisPayload `json:"payload"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Pipeline ---

// Snapshot возвращает текущий snapshot pipeline.
func (c *Client) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.get(ctx, "/api/v1/pipeline", &snap)
	return &snap, err
}

// Start запускает run и возвращает snapshot сразу после перехода в RUNNING.
func (c *Client) Start(ctx context.Context, payload *domain.AnalysisPayload) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.post(ctx, "/api/v1/pipeline/start", StartRequest{Payload: payload}, &snap)
	return &snap, err
}

// Reset возвращает pipeline в IDLE.
func (c *Client) Reset(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.post(ctx, "/api/v1/pipeline/reset", nil, &snap)
	return &snap, err
}

// Catalog возвращает каталог шагов.
func (c *Client) Catalog(ctx context.Context) (*CatalogResponse, error) {
	var cat CatalogResponse
	err := c.get(ctx, "/api/v1/catalog", &cat)
	return &cat, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}

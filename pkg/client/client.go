package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splax/slaguard/internal/service/alerting"
)

// Client provides typed access to the slaguard admin API for operator tools.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithToken sets the admin bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4100"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// EvaluationRun is the response of a manual evaluation pass. Error is set when
// some rules or incidents failed while the rest of the pass completed.
type EvaluationRun struct {
	Result alerting.EvaluationResult `json:"result"`
	Error  string                    `json:"error,omitempty"`
}

// RulesResponse reports the active rule set and where it came from.
type RulesResponse struct {
	Source string `json:"source"`
	alerting.RuleSet
}

// Definition reflects SLA definition payloads.
type Definition struct {
	ID         string     `json:"id"`
	ServiceID  *string    `json:"serviceId"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	Target     float64    `json:"target"`
	Window     string     `json:"window"`
	MetricType string     `json:"metricType"`
	ActiveFrom time.Time  `json:"activeFrom"`
	ActiveTo   *time.Time `json:"activeTo"`
}

// SupersedeRequest carries the fields to change on the next definition version.
// Zero values keep the current setting.
type SupersedeRequest struct {
	Name   string   `json:"name,omitempty"`
	Target *float64 `json:"target,omitempty"`
	Window string   `json:"window,omitempty"`
}

// Snapshot reflects a stored daily SLA snapshot.
type Snapshot struct {
	ID               string          `json:"id"`
	Date             string          `json:"date"`
	SLADefinitionID  string          `json:"slaDefinitionId"`
	TotalEvents      int64           `json:"totalEvents"`
	ErrorEvents      int64           `json:"errorEvents"`
	UptimePercentage float64         `json:"uptimePercentage"`
	BreachCount      int             `json:"breachCount"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// SnapshotOutcome is the per-definition result of a snapshot run.
type SnapshotOutcome struct {
	DefinitionID string    `json:"definitionId"`
	Snapshot     *Snapshot `json:"snapshot,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// SnapshotRun summarises a snapshot pass across all live definitions.
type SnapshotRun struct {
	Date     string            `json:"date"`
	Outcomes []SnapshotOutcome `json:"outcomes"`
	Failed   int               `json:"failed"`
}

// Report reflects a compliance report over a definition's window.
type Report struct {
	DefinitionID string    `json:"definitionId"`
	MetricType   string    `json:"metricType"`
	Window       string    `json:"window"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Value        float64   `json:"value"`
	Target       float64   `json:"target"`
	Compliant    bool      `json:"compliant"`
	TotalEvents  int64     `json:"totalEvents"`
	ErrorEvents  int64     `json:"errorEvents"`
	BreachDays   int       `json:"breachDays"`
	DaysCovered  int       `json:"daysCovered"`
	DaysInWindow int       `json:"daysInWindow"`
}

// RunEvaluation triggers one alert evaluation pass.
func (c *Client) RunEvaluation(ctx context.Context) (EvaluationRun, error) {
	var out EvaluationRun
	err := c.do(ctx, http.MethodPost, "/evaluations/run", nil, &out)
	return out, err
}

// GetRules fetches the active alert rule set.
func (c *Client) GetRules(ctx context.Context) (RulesResponse, error) {
	var out RulesResponse
	err := c.do(ctx, http.MethodGet, "/alert-rules", nil, &out)
	return out, err
}

// PutRules replaces the configured alert rule set.
func (c *Client) PutRules(ctx context.Context, set alerting.RuleSet) (RulesResponse, error) {
	var out RulesResponse
	err := c.do(ctx, http.MethodPut, "/alert-rules", set, &out)
	return out, err
}

// ResetRules removes the configured rule set so the defaults apply.
func (c *Client) ResetRules(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/alert-rules", nil, nil)
}

// CreateDefaultSLA provisions the standard availability definition. An empty
// serviceID creates a global definition.
func (c *Client) CreateDefaultSLA(ctx context.Context, serviceID string) (Definition, error) {
	var out Definition
	err := c.do(ctx, http.MethodPost, "/sla-definitions/default", map[string]string{"serviceId": serviceID}, &out)
	return out, err
}

// Supersede closes a definition and creates its next version.
func (c *Client) Supersede(ctx context.Context, definitionID string, req SupersedeRequest) (Definition, error) {
	var out Definition
	err := c.do(ctx, http.MethodPost, "/sla-definitions/"+url.PathEscape(definitionID)+"/supersede", req, &out)
	return out, err
}

// GenerateSnapshot computes the snapshot of one definition for day (YYYY-MM-DD, empty for today).
func (c *Client) GenerateSnapshot(ctx context.Context, definitionID, day string) (Snapshot, error) {
	var out Snapshot
	path := "/sla-definitions/" + url.PathEscape(definitionID) + "/snapshots" + query("date", day)
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

// ListSnapshots returns stored snapshots between from and to (inclusive, YYYY-MM-DD).
func (c *Client) ListSnapshots(ctx context.Context, definitionID, from, to string) ([]Snapshot, error) {
	values := url.Values{}
	if from != "" {
		values.Set("from", from)
	}
	if to != "" {
		values.Set("to", to)
	}
	path := "/sla-definitions/" + url.PathEscape(definitionID) + "/snapshots"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []Snapshot
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Report aggregates a definition's snapshots over its compliance window ending at asOf.
func (c *Client) Report(ctx context.Context, definitionID, asOf string) (Report, error) {
	var out Report
	path := "/sla-definitions/" + url.PathEscape(definitionID) + "/report" + query("as_of", asOf)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// RunSnapshots generates snapshots for every definition live on day.
func (c *Client) RunSnapshots(ctx context.Context, day string) (SnapshotRun, error) {
	var out SnapshotRun
	err := c.do(ctx, http.MethodPost, "/snapshots/run"+query("date", day), nil, &out)
	return out, err
}

func query(key, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return "?" + url.Values{key: []string{value}}.Encode()
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
	"github.com/kubilitics/kubilitics-forecast/internal/server"
)

// Client talks to the forecast service REST API.
type Client struct {
	base string
	http *http.Client
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// NewClient creates a client for the service at base.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Report requests a new analytics report.
func (c *Client) Report(ctx context.Context, req analytics.Request) (*analytics.Report, error) {
	var out analytics.Report
	if err := c.do(ctx, http.MethodPost, "/api/v1/analytics/predictive", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport fetches a stored report.
func (c *Client) GetReport(ctx context.Context, id string) (*analytics.Report, error) {
	var out analytics.Report
	if err := c.do(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListReports lists stored report metadata of a tenant, newest first.
func (c *Client) ListReports(ctx context.Context, tenant string, limit int) ([]db.ReportRecord, error) {
	path := "/api/v1/tenants/" + url.PathEscape(tenant) + "/reports"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []db.ReportRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ingest uploads records for tenant.
func (c *Client) Ingest(ctx context.Context, tenant string, recs []models.HistoricalRecord) (*server.IngestResponse, error) {
	var out server.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tenants/"+url.PathEscape(tenant)+"/records", recs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Domains lists the forecast domains the service knows.
func (c *Client) Domains(ctx context.Context) ([]server.DomainInfo, error) {
	var out []server.DomainInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/analytics/domains", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr server.APIError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

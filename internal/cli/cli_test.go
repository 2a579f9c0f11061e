package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
	"github.com/kubilitics/kubilitics-forecast/internal/server"
)

// fakeService records what the CLI sends and answers with canned bodies.
type fakeService struct {
	mu       sync.Mutex
	requests []analytics.Request
	ingested [][]models.HistoricalRecord
}

func (f *fakeService) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/analytics/predictive", func(w http.ResponseWriter, r *http.Request) {
		var req analytics.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		if req.TenantID == "broken" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(server.APIError{Error: "invalid request: unknown domain", Code: server.ErrCodeInvalidRequest})
			return
		}
		_ = json.NewEncoder(w).Encode(sampleReport(req.TenantID))
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		rep := sampleReport("acme")
		rep.ID = mux.Vars(r)["id"]
		_ = json.NewEncoder(w).Encode(rep)
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tenants/{tenant}/reports", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]db.ReportRecord{{
			ID: "r1", TenantID: mux.Vars(r)["tenant"], Horizon: 7, Domains: "demand", Confidence: 0.7,
			CreatedAt: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		}})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tenants/{tenant}/records", func(w http.ResponseWriter, r *http.Request) {
		var recs []models.HistoricalRecord
		_ = json.NewDecoder(r.Body).Decode(&recs)
		f.mu.Lock()
		f.ingested = append(f.ingested, recs)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(server.IngestResponse{TenantID: mux.Vars(r)["tenant"], Received: len(recs), Inserted: len(recs) - 1})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/analytics/domains", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]server.DomainInfo{
			{Domain: "risk", RecordKind: "shipment", Granularity: "week", Unit: "ratio"},
			{Domain: "demand", RecordKind: "transport_request", Granularity: "day", Unit: "requests", Aliases: []string{"performance"}},
		})
	}).Methods(http.MethodGet)
	return r
}

func sampleReport(tenant string) analytics.Report {
	return analytics.Report{
		ID:       "rep-1",
		TenantID: tenant,
		Horizon:  2,
		Domains:  []forecasting.Domain{forecasting.Demand},
		Predictions: map[forecasting.Domain]forecasting.Series{
			forecasting.Demand: {
				Domain: forecasting.Demand,
				Unit:   "requests",
				Points: []forecasting.Point{
					{Index: 0, Period: "2026-03-09", Predicted: 12, Confidence: 0.85},
					{Index: 1, Period: "2026-03-10", Predicted: 13, Confidence: 0.8},
				},
			},
		},
		Recommendations: []recommendation.Recommendation{
			{Type: "capacity", Priority: recommendation.PriorityHigh, Action: "Add transport capacity", Impact: "Avoid backlog", Timeline: "1-2 weeks"},
		},
		Confidence:  0.82,
		LastUpdated: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
	}
}

func runCLI(t *testing.T, svc *fakeService, stdin string, args ...string) (string, error) {
	t.Helper()
	ts := httptest.NewServer(svc.handler())
	t.Cleanup(ts.Close)

	var out, errOut bytes.Buffer
	cmd := NewRootCommandWithIO(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--server", ts.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestReportCommand_Table(t *testing.T) {
	svc := &fakeService{}
	out, err := runCLI(t, svc, "", "report", "--tenant", "acme", "--domains", "demand,cost", "--horizon", "2",
		"--param", "capacityThreshold=0.8", "--param", "noise=true", "--param", "label=peak")
	require.NoError(t, err)

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, "acme", req.TenantID)
	assert.Equal(t, []string{"demand", "cost"}, req.Domains)
	assert.Equal(t, 2, req.Horizon)
	assert.Equal(t, map[string]any{"capacityThreshold": 0.8, "noise": true, "label": "peak"}, req.Parameters)

	assert.Contains(t, out, "Report rep-1")
	assert.Contains(t, out, "DEMAND")
	assert.Contains(t, out, "2026-03-10")
	assert.Contains(t, out, "Add transport capacity")
}

func TestReportCommand_JSONAndYAML(t *testing.T) {
	svc := &fakeService{}
	out, err := runCLI(t, svc, "", "report", "--tenant", "acme", "-o", "json")
	require.NoError(t, err)
	var rep analytics.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "acme", rep.TenantID)
	assert.Equal(t, []string{"all"}, svc.requests[0].Domains)

	out, err = runCLI(t, svc, "", "report", "--tenant", "acme", "-o", "yaml")
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &generic))
	assert.Equal(t, "acme", generic["tenantId"])
}

func TestReportCommand_Errors(t *testing.T) {
	svc := &fakeService{}

	_, err := runCLI(t, svc, "", "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")

	_, err = runCLI(t, svc, "", "report", "--tenant", "acme", "--param", "novalue")
	require.Error(t, err)

	_, err = runCLI(t, svc, "", "report", "--tenant", "broken")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, server.ErrCodeInvalidRequest, apiErr.Code)

	_, err = runCLI(t, svc, "", "report", "--tenant", "acme", "-o", "xml")
	require.Error(t, err)
}

func TestReportCommand_ByID(t *testing.T) {
	svc := &fakeService{}
	out, err := runCLI(t, svc, "", "report", "--id", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Report abc")
	assert.Empty(t, svc.requests)
}

func TestReportsCommand(t *testing.T) {
	out, err := runCLI(t, &fakeService{}, "", "reports", "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "demand")
}

func TestIngestCommand_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- kind: shipment
  timestamp: 2026-03-01T08:00:00Z
  status: delivered
  value: 120.5
  co2Kg: 14.2
  onTime: true
  utilization: 0.8
- id: s-2
  kind: shipment
  timestamp: "2026-03-02T08:00:00Z"
  status: delayed
  value: 80
`), 0o600))

	svc := &fakeService{}
	out, err := runCLI(t, svc, "", "ingest", "--tenant", "acme", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 2 records stored for tenant acme (1 duplicates skipped)")

	require.Len(t, svc.ingested, 1)
	recs := svc.ingested[0]
	require.Len(t, recs, 2)
	assert.Equal(t, models.RecordKindShipment, recs[0].Kind)
	assert.True(t, recs[0].Timestamp.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, recs[0].OnTime)
	assert.Equal(t, "s-2", recs[1].ID)
	assert.True(t, recs[1].Timestamp.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)))
}

func TestIngestCommand_JSONStdin(t *testing.T) {
	svc := &fakeService{}
	_, err := runCLI(t, svc, `[{"kind":"order","timestamp":"2026-03-01T08:00:00Z","status":"delivered","value":40}]`,
		"ingest", "--tenant", "acme", "-f", "-")
	require.NoError(t, err)
	require.Len(t, svc.ingested, 1)
	assert.Equal(t, models.RecordKindOrder, svc.ingested[0][0].Kind)
}

func TestIngestCommand_Rejects(t *testing.T) {
	svc := &fakeService{}

	_, err := runCLI(t, svc, `[{"kind":"parcel","timestamp":"2026-03-01T08:00:00Z"}]`, "ingest", "--tenant", "acme", "-f", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")

	_, err = runCLI(t, svc, "", "ingest", "--tenant", "acme", "-f", "-")
	require.Error(t, err)

	_, err = runCLI(t, svc, "", "ingest", "-f", "-")
	require.Error(t, err)
	assert.Empty(t, svc.ingested)
}

func TestDomainsCommand(t *testing.T) {
	out, err := runCLI(t, &fakeService{}, "", "domains")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "demand"))
	assert.Contains(t, lines[1], "performance")
	assert.True(t, strings.HasPrefix(lines[2], "risk"))
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"seed=42", " noise = false ", "mode=fast"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seed": 42.0, "noise": false, "mode": "fast"}, got)

	got, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/metrics"
	"github.com/kubilitics/kubilitics-forecast/internal/models"
)

// IngestResponse is returned by the ingest endpoint.
type IngestResponse struct {
	TenantID string `json:"tenantId"`
	Received int    `json:"received"`
	Inserted int    `json:"inserted"`
}

// DomainInfo describes one forecast domain.
type DomainInfo struct {
	Domain      string   `json:"domain"`
	RecordKind  string   `json:"recordKind"`
	Granularity string   `json:"granularity"`
	Unit        string   `json:"unit"`
	Aliases     []string `json:"aliases,omitempty"`
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "healthy",
		"service": "kubilitics-forecast",
		"version": Version,
		"clients": s.hub.ClientCount(),
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	respondJSON(w, http.StatusOK, body)
}

// POST /api/v1/analytics/predictive
func (s *Server) handlePredictivePost(w http.ResponseWriter, r *http.Request) {
	var req analytics.Request
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondErr(w, r, fmt.Errorf("%w: decode body: %w", analytics.ErrInvalidRequest, err))
		return
	}
	s.predict(w, r, req)
}

// GET /api/v1/analytics/predictive?tenantId=&analysisType=&horizon=
//
// analysisType takes a domain name or a comma-separated list. Other query
// parameters are passed through as request parameters.
func (s *Server) handlePredictiveGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := analytics.Request{TenantID: q.Get("tenantId")}
	if v := strings.TrimSpace(q.Get("analysisType")); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				req.Domains = append(req.Domains, d)
			}
		}
	}
	if v := q.Get("horizon"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			respondErr(w, r, fmt.Errorf("%w: horizon must be an integer, got %q", analytics.ErrInvalidRequest, v))
			return
		}
		req.Horizon = h
	}
	for key, values := range q {
		switch key {
		case "tenantId", "analysisType", "horizon":
			continue
		}
		if req.Parameters == nil {
			req.Parameters = make(map[string]any)
		}
		req.Parameters[key] = values[0]
	}
	s.predict(w, r, req)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request, req analytics.Request) {
	report, err := s.runReport(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/v1/analytics/domains
func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	aliases := make(map[string][]string)
	for alias, d := range s.registry.Aliases() {
		aliases[string(d)] = append(aliases[string(d)], alias)
	}
	var out []DomainInfo
	for _, d := range s.registry.Domains() {
		desc, _ := s.registry.Lookup(string(d))
		info := DomainInfo{
			Domain:      string(d),
			RecordKind:  string(desc.RecordKind),
			Granularity: string(desc.Granularity),
			Unit:        desc.Unit,
			Aliases:     aliases[string(d)],
		}
		sort.Strings(info.Aliases)
		out = append(out, info)
	}
	respondJSON(w, http.StatusOK, out)
}

// POST /api/v1/tenants/{tenant}/records
//
// Body is a JSON array of records. A record's tenantId, when present, must
// match the path.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "record store not configured")
		return
	}
	tenant := mux.Vars(r)["tenant"]

	var recs []models.HistoricalRecord
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "request body too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "decode records: "+err.Error())
		return
	}
	if len(recs) == 0 {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "no records in body")
		return
	}
	for i := range recs {
		switch recs[i].TenantID {
		case "":
			recs[i].TenantID = tenant
		case tenant:
		default:
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest,
				fmt.Sprintf("record %d belongs to tenant %q, not %q", i, recs[i].TenantID, tenant))
			return
		}
	}

	n, err := s.store.InsertRecords(r.Context(), recs)
	if err != nil {
		if errors.Is(err, db.ErrInvalidRecord) {
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		s.logger.Error("insert records failed", zap.String("tenant_id", tenant), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal failure")
		return
	}
	for _, rec := range recs {
		metrics.RecordsIngested.WithLabelValues(string(rec.Kind)).Inc()
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(r.Context(), tenant); err != nil {
			s.logger.Warn("record cache invalidation failed", zap.String("tenant_id", tenant), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusCreated, IngestResponse{TenantID: tenant, Received: len(recs), Inserted: n})
}

// GET /api/v1/tenants/{tenant}/reports?limit=
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "report store not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	recs, err := s.store.ListReports(r.Context(), mux.Vars(r)["tenant"], limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		respondErr(w, r, err)
		return
	}
	if recs == nil {
		recs = []*db.ReportRecord{}
	}
	// Listings carry metadata only; fetch a report by id for the payload.
	for _, rec := range recs {
		rec.Payload = ""
	}
	respondJSON(w, http.StatusOK, recs)
}

// GET /api/v1/reports/{id}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "report store not configured")
		return
	}
	rec, err := s.store.GetReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("get report failed", zap.Error(err))
		}
		respondErr(w, r, err)
		return
	}
	report, err := db.DecodeReport(rec)
	if err != nil {
		s.logger.Error("decode stored report failed", zap.String("report_id", rec.ID), zap.Error(err))
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

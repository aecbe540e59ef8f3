// Package server is the thin localhost HTTP surface over the engine. It
// carries no business logic: requests are parsed, handed to the engine or
// the ingest queue, and results encoded back out.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"timetrace/worktime-agent/internal/dateutil"
	"timetrace/worktime-agent/internal/models"
	"timetrace/worktime-agent/internal/queue"
	"timetrace/worktime-agent/internal/repository"
	"timetrace/worktime-agent/internal/service"

	"go.uber.org/zap"
)

// APIServer handles HTTP requests from local collaborators (dashboard,
// tray, event forwarders)
type APIServer struct {
	engine *service.Engine
	ingest *queue.IngestQueue
	logger *zap.Logger
}

// NewAPIServer creates a new API server
func NewAPIServer(engine *service.Engine, ingest *queue.IngestQueue, logger *zap.Logger) *APIServer {
	return &APIServer{
		engine: engine,
		ingest: ingest,
		logger: logger,
	}
}

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ServeHTTP implements http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/v1/events" && r.Method == http.MethodPost:
		s.handleIngestEvent(w, r)
	case path == "/api/v1/records" && r.Method == http.MethodGet:
		s.handleQueryRecords(w, r)
	case strings.HasPrefix(path, "/api/v1/records/"):
		s.routeRecord(w, r, strings.TrimPrefix(path, "/api/v1/records/"))
	case strings.HasPrefix(path, "/api/v1/statistics/") && r.Method == http.MethodGet:
		s.handleStatistics(w, r, strings.TrimPrefix(path, "/api/v1/statistics/"))
	case path == "/api/v1/health" && r.Method == http.MethodGet:
		s.handleHealth(w)
	default:
		http.NotFound(w, r)
	}
}

func (s *APIServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*") // localhost collaborators
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleIngestEvent accepts a raw event and queues it; processing is
// asynchronous, so acceptance only means durable receipt
func (s *APIServer) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var raw models.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.logger.Warn("Failed to decode event request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if raw.Type == "" {
		http.Error(w, "Missing event type", http.StatusBadRequest)
		return
	}

	if err := s.ingest.Enqueue(raw); err != nil {
		s.logger.Error("Failed to enqueue event", zap.Error(err))
		http.Error(w, "Failed to accept event", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusAccepted, apiResponse{Success: true, Message: "event accepted"})
}

func (s *APIServer) handleQueryRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.RecordQuery{
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		OrderDesc: q.Get("order") != "asc",
	}
	if v := q.Get("status"); v != "" {
		status := models.RecordStatus(v)
		if !models.ValidRecordStatus(status) {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		query.Status = &status
	}
	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.Size, _ = strconv.Atoi(q.Get("size"))

	records, total, err := s.engine.QueryRecords(query)
	if err != nil {
		s.logger.Error("Failed to query records", zap.Error(err))
		http.Error(w, "Failed to query records", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "ok",
		Data: map[string]interface{}{
			"records": records,
			"total":   total,
		},
	})
}

func (s *APIServer) routeRecord(w http.ResponseWriter, r *http.Request, rest string) {
	date, action, _ := strings.Cut(rest, "/")

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetRecord(w, date)
	case action == "" && r.Method == http.MethodPut:
		s.handleMarkManual(w, r, date)
	case action == "" && r.Method == http.MethodDelete:
		s.handleDeleteRecord(w, date)
	case action == "reset" && r.Method == http.MethodPost:
		s.handleReset(w, date)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) handleGetRecord(w http.ResponseWriter, date string) {
	record, err := s.engine.GetRecord(date)
	if errors.Is(err, repository.ErrRecordNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		if !dateutil.Valid(date) {
			http.Error(w, "Invalid date", http.StatusBadRequest)
			return
		}
		s.logger.Error("Failed to get record", zap.String("date", date), zap.Error(err))
		http.Error(w, "Failed to get record", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok", Data: record})
}

func (s *APIServer) handleMarkManual(w http.ResponseWriter, r *http.Request, date string) {
	var edit models.ManualEdit
	if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.engine.MarkManual(date, edit)
	if err != nil {
		s.logger.Warn("Manual edit rejected", zap.String("date", date), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "record updated", Data: record})
}

func (s *APIServer) handleDeleteRecord(w http.ResponseWriter, date string) {
	err := s.engine.DeleteRecord(date)
	if errors.Is(err, repository.ErrRecordNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to delete record", zap.String("date", date), zap.Error(err))
		http.Error(w, "Failed to delete record", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "record deleted"})
}

func (s *APIServer) handleReset(w http.ResponseWriter, date string) {
	record, err := s.engine.ResetToAutomatic(date)
	if err != nil {
		s.logger.Error("Failed to reset record", zap.String("date", date), zap.Error(err))
		http.Error(w, "Failed to reset record", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "record reset", Data: record})
}

// handleStatistics serves /api/v1/statistics/{type}/{date} and, for custom
// ranges, /api/v1/statistics/custom?start_date=...&end_date=...
func (s *APIServer) handleStatistics(w http.ResponseWriter, r *http.Request, rest string) {
	statTypeStr, date, _ := strings.Cut(rest, "/")
	statType := models.StatType(statTypeStr)
	if !models.ValidStatType(statType) {
		http.Error(w, "Invalid statistics type", http.StatusBadRequest)
		return
	}

	if statType == models.StatCustom {
		q := r.URL.Query()
		result, err := s.engine.GetRangeStatistics(q.Get("start_date"), q.Get("end_date"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok", Data: result})
		return
	}

	data, err := s.engine.GetStatistics(statType, date)
	if err != nil {
		s.logger.Error("Failed to compute statistics",
			zap.String("stat_type", statTypeStr),
			zap.String("date", date),
			zap.Error(err),
		)
		http.Error(w, "Failed to compute statistics", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok", Data: data})
}

func (s *APIServer) handleHealth(w http.ResponseWriter) {
	pending, err := s.ingest.PendingCount()
	if err != nil {
		http.Error(w, "Unhealthy", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "ok",
		Data: map[string]interface{}{
			"pending_events": pending,
			"time":           time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

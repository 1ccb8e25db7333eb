package server

import (
	"io"
	"net/http"
	"time"

	apperrors "github.com/nvoss/lagmark/internal/errors"
	"github.com/nvoss/lagmark/internal/ingest"
	"github.com/nvoss/lagmark/internal/storage/query"
)

// maxPayloadBytes caps the ingest request body. Batches are exporter
// flushes, not bulk imports; anything larger is a misbehaving client.
const maxPayloadBytes = 16 << 20

type ingestResponse struct {
	OK              bool               `json:"ok"`
	Accepted        int                `json:"accepted"`
	ServerTimestamp int64              `json:"serverTimestamp"`
	Rejected        []ingest.Rejection `json:"rejected,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	serverTs := time.Now().UnixMilli()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", nil, serverTs)
		return
	}
	if len(body) > maxPayloadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "payload too large", nil, serverTs)
		return
	}

	res, err := s.gateway.Ingest(r.Context(), body)
	if err != nil {
		var batchErr *apperrors.BatchError
		if apperrors.As(err, &batchErr) {
			respondError(w, http.StatusBadRequest, "validation failed", batchErr.Reasons, serverTs)
			return
		}
		if apperrors.IsValidation(err) {
			respondError(w, http.StatusBadRequest, err.Error(), nil, serverTs)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to persist metrics", nil, serverTs)
		return
	}

	respondJSON(w, http.StatusOK, ingestResponse{
		OK:              true,
		Accepted:        res.Accepted,
		ServerTimestamp: res.ServerTimestamp,
		Rejected:        res.Rejected,
	})
}

type healthResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{OK: true, Status: "healthy"})
}

func queryParams(r *http.Request) query.Params {
	q := r.URL.Query()
	return query.Params{
		Range: q.Get("range"),
		From:  q.Get("from"),
		To:    q.Get("to"),
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.Summary(r.Context(), queryParams(r))
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatencyHistogram(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.LatencyHistogram(r.Context(), queryParams(r))
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDailyRollup(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.DailyRollup(r.Context(), queryParams(r))
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) respondQueryError(w http.ResponseWriter, err error) {
	status := apperrors.ErrorToStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	respondError(w, status, msg, nil, 0)
}

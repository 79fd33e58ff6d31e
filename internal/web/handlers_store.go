package web

// handlers_store.go serves the report store contract consumed by
// storeclient: the newest record, every record, add and delete.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/logging"
	"github.com/JonMunkholm/marketboard/internal/storeclient"
)

const storePrefix = storeclient.PathLatest

// addRequest is the body of POST /csvfileHandeling/add. Report accepts a
// numeric byte array, base64 or the serialized report text.
type addRequest struct {
	FileName string         `json:"file_name"`
	Report   core.ByteArray `json:"report"`
}

// handleStoreLatest returns the newest record. JSON callers get the record
// object; everyone else gets the raw report bytes with the record fields
// in headers.
func (s *Server) handleStoreLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.Latest(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, r, http.StatusOK, rec)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set(storeclient.HeaderRecordID, strconv.FormatInt(rec.ID, 10))
	h.Set(storeclient.HeaderUploadDate, rec.UploadDate.UTC().Format(time.RFC3339Nano))
	if rec.FileName != "" {
		h.Set(storeclient.HeaderFileName, rec.FileName)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rec.Report); err != nil {
		logging.FromContext(r.Context()).Warn("write report body", "error", err)
	}
}

func (s *Server) handleStoreList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.repo.List(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, recs)
}

// handleStoreAdd validates that the payload decodes as a report before it
// is stored, so readers never see a record they cannot open.
func (s *Server) handleStoreAdd(w http.ResponseWriter, r *http.Request) {
	// A numeric byte array costs up to four characters per byte.
	r.Body = http.MaxBytesReader(w, r.Body, 4*s.cfg.Upload.MaxFileSize+4096)

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	report, err := core.Deserialize(req.Report)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = report.Metadata.FileName
	}

	rec, err := s.repo.Create(r.Context(), fileName, req.Report)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	s.invalidateLatest()

	logging.FromContext(r.Context()).Info("report stored",
		"id", rec.ID,
		"file_name", rec.FileName,
		"items", len(report.Items),
	)
	writeJSON(w, r, http.StatusCreated, rec)
}

func (s *Server) handleStoreDelete(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, fmt.Errorf("invalid request: record id %q", raw), http.StatusBadRequest)
		return
	}

	if err := s.repo.Delete(r.Context(), id); err != nil {
		respondError(w, r, err, 0)
		return
	}
	s.invalidateLatest()

	logging.FromContext(r.Context()).Info("report deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

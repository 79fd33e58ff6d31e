package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/logging"
	"github.com/JonMunkholm/marketboard/internal/web/templates"
)

// multipartOverhead allows for form boundaries and part headers around the
// file itself.
const multipartOverhead = 64 << 10

// UploadResponse is returned after a sheet has been parsed and stored.
type UploadResponse struct {
	UploadID   string       `json:"upload_id"`
	ID         int64        `json:"id"`
	FileName   string       `json:"file_name"`
	UploadDate time.Time    `json:"uploaddate"`
	Summary    core.Summary `json:"summary"`
}

// ReportResponse is the newest report with its record fields.
type ReportResponse struct {
	ID         int64                 `json:"id"`
	FileName   string                `json:"file_name"`
	UploadDate time.Time             `json:"uploaddate"`
	Categories []string              `json:"categories"`
	Report     core.StructuredReport `json:"report"`
}

// ItemsResponse is one filtered view of the newest report.
type ItemsResponse struct {
	Headers    []string    `json:"headers"`
	Categories []string    `json:"categories"`
	Tab        int         `json:"tab"`
	Category   string      `json:"category,omitempty"`
	Query      string      `json:"query,omitempty"`
	Count      int         `json:"count"`
	Items      []core.Item `json:"items"`
}

// handleUpload parses a multipart CSV upload in the "file" field and stores
// the serialized report.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := uuid.NewString()
	logger := logging.WithFields(r.Context(), "upload_id", uploadID)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	if err := s.uploads.Acquire(ctx); err != nil {
		s.metrics.ObserveUpload(err)
		respondError(w, r, err, 0)
		return
	}
	defer s.uploads.Release()
	s.metrics.UploadStarted()
	defer s.metrics.UploadFinished()

	resp, err := s.processUpload(ctx, w, r, uploadID)
	s.metrics.ObserveUpload(err)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logger.Info("upload stored",
		"id", resp.ID,
		"file_name", resp.FileName,
		"items", resp.Summary.TotalItems,
	)
	writeJSON(w, r, http.StatusCreated, resp)
}

func (s *Server) processUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, uploadID string) (UploadResponse, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return UploadResponse{}, fmt.Errorf("file too large: upload exceeds %d bytes", s.cfg.Upload.MaxFileSize)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return UploadResponse{}, errors.New("no file provided")
		}
		return UploadResponse{}, fmt.Errorf("invalid request form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return UploadResponse{}, errors.New("no file provided")
	}
	defer file.Close()

	report, err := s.parser.Parse(file, header.Filename)
	s.metrics.ObserveParse(len(report.Items), err)
	if err != nil {
		return UploadResponse{}, err
	}

	data, err := core.Serialize(report)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("serialize %s: %w", header.Filename, err)
	}

	rec, err := s.repo.Create(ctx, header.Filename, data)
	if err != nil {
		return UploadResponse{}, err
	}
	s.invalidateLatest()

	return UploadResponse{
		UploadID:   uploadID,
		ID:         rec.ID,
		FileName:   rec.DisplayName(),
		UploadDate: rec.UploadDate,
		Summary:    core.Summarize(report, s.cfg.Report.PriceColumn),
	}, nil
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	latest, err := s.loadLatest(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, ReportResponse{
		ID:         latest.Record.ID,
		FileName:   latest.displayName(),
		UploadDate: latest.Record.UploadDate,
		Categories: nonNil(latest.Categories),
		Report:     latest.Report,
	})
}

// handleLatestItems filters the newest report. The category is chosen by
// tab index (0 is every category) or, when given, by label.
func (s *Server) handleLatestItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tab, err := tabParam(q.Get("tab"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	latest, err := s.loadLatest(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	search := q.Get("q")
	resp := ItemsResponse{
		Headers:    latest.Report.Headers,
		Categories: nonNil(latest.Categories),
		Tab:        tab,
		Query:      search,
	}
	if label := strings.TrimSpace(q.Get("category")); label != "" {
		resp.Category = core.NormalizedCategory(core.Item{core.CategoryField: label})
		resp.Items = core.FilterByCategory(latest.Report, search, resp.Category)
	} else {
		resp.Items = core.Filter(latest.Report, search, tab)
	}
	resp.Count = len(resp.Items)

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleLatestSummary(w http.ResponseWriter, r *http.Request) {
	latest, err := s.loadLatest(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, s.summarize(latest))
}

// handleReportPage renders the newest report as HTML. An empty store is a
// normal state and gets its own page.
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// A malformed tab on the page falls back to every category.
	tab, _ := tabParam(q.Get("tab"))

	latest, err := s.loadLatest(r.Context())
	if errors.Is(err, core.ErrNotFound) {
		s.render(w, r, http.StatusOK, templates.EmptyPage(core.MapError(err)))
		return
	}
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	search := q.Get("q")
	s.render(w, r, http.StatusOK, templates.ReportPage(templates.ReportPageData{
		Summary:    s.summarize(latest),
		Notes:      latest.Report.SpecialNotes,
		Headers:    latest.Report.Headers,
		Items:      core.Filter(latest.Report, search, tab),
		Categories: latest.Categories,
		ActiveTab:  tab,
		Query:      search,
	}))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("render page", "error", err)
	}
}

func (s *Server) summarize(latest latestReport) core.Summary {
	sum := core.Summarize(latest.Report, s.cfg.Report.PriceColumn)
	sum.FileName = latest.displayName()
	return sum
}

func (l latestReport) displayName() string {
	if l.Record.FileName != "" {
		return l.Record.FileName
	}
	return l.Report.Metadata.FileName
}

// tabParam parses the tab query parameter; empty means every category.
func tabParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	tab, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid request: tab %q is not a number", raw)
	}
	return tab, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Package storeclient talks to the remote report store over HTTP.
//
// It is the only component that touches the network. Every failure comes
// back as a *core.StoreError; there is no retry, backoff or caching here,
// callers decide what to do.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/logging"
)

// Store endpoints, relative to the base URL.
const (
	PathLatest = "/csvfileHandeling"
	PathAll    = "/csvfileHandeling/all"
	PathAdd    = "/csvfileHandeling/add"
)

// Response headers carrying record fields alongside a raw report body.
const (
	HeaderRecordID   = "X-Report-Id"
	HeaderFileName   = "X-Report-File-Name"
	HeaderUploadDate = "X-Report-Upload-Date"
)

// maxErrorBody caps how much of a rejection body is kept in the error.
const maxErrorBody = 4 << 10

// Client is a report store client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends key in the X-API-Key header on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a client for the store at baseURL (e.g. "http://host:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// persistRequest is the create body. FileName is optional; the store falls
// back to the report metadata when it is absent.
type persistRequest struct {
	FileName string         `json:"file_name,omitempty"`
	Report   core.ByteArray `json:"report"`
}

// Persist stores serialized report bytes as a new record.
func (c *Client) Persist(ctx context.Context, data []byte) (core.StoredRecord, error) {
	return c.persist(ctx, persistRequest{Report: data})
}

// PersistNamed is Persist with an explicit display name for the record.
func (c *Client) PersistNamed(ctx context.Context, fileName string, data []byte) (core.StoredRecord, error) {
	return c.persist(ctx, persistRequest{FileName: fileName, Report: data})
}

// Upload serializes report and persists it under its metadata file name.
func (c *Client) Upload(ctx context.Context, report core.StructuredReport) (core.StoredRecord, error) {
	data, err := core.Serialize(report)
	if err != nil {
		return core.StoredRecord{}, err
	}
	return c.PersistNamed(ctx, report.Metadata.FileName, data)
}

func (c *Client) persist(ctx context.Context, body persistRequest) (core.StoredRecord, error) {
	const op = "persist"

	payload, err := json.Marshal(body)
	if err != nil {
		return core.StoredRecord{}, fmt.Errorf("encode persist request: %w", err)
	}

	resp, respBody, err := c.do(ctx, op, http.MethodPost, PathAdd, bytes.NewReader(payload))
	if err != nil {
		return core.StoredRecord{}, err
	}
	if !isSuccess(resp.StatusCode) {
		return core.StoredRecord{}, rejected(op, resp.StatusCode, respBody)
	}

	rec, err := decodeRecord(resp.Header, respBody)
	if err != nil {
		return core.StoredRecord{}, corruptErr(op, err)
	}
	if len(rec.Report) == 0 {
		rec.Report = body.Report
	}
	if rec.FileName == "" {
		rec.FileName = body.FileName
	}

	logging.FromContext(ctx).Debug("report persisted", "id", rec.ID, "bytes", len(body.Report))
	return rec, nil
}

// FetchLatest returns the most recently stored record. ok is false, with a
// nil error, when the store has no records.
func (c *Client) FetchLatest(ctx context.Context) (rec core.StoredRecord, ok bool, err error) {
	const op = "fetch latest"

	resp, body, err := c.do(ctx, op, http.MethodGet, PathLatest, nil)
	if err != nil {
		return core.StoredRecord{}, false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return core.StoredRecord{}, false, nil
	}
	if !isSuccess(resp.StatusCode) {
		return core.StoredRecord{}, false, rejected(op, resp.StatusCode, body)
	}
	// An empty success body is how a store with no rows has answered
	// historically.
	if len(bytes.TrimSpace(body)) == 0 {
		return core.StoredRecord{}, false, nil
	}

	rec, err = decodeRecord(resp.Header, body)
	if err != nil {
		return core.StoredRecord{}, false, corruptErr(op, err)
	}
	logging.FromContext(ctx).Debug("latest report fetched", "id", rec.ID, "bytes", len(rec.Report))
	return rec, true, nil
}

// FetchLatestReport fetches the latest record and deserializes its report.
func (c *Client) FetchLatestReport(ctx context.Context) (core.StructuredReport, core.StoredRecord, bool, error) {
	rec, ok, err := c.FetchLatest(ctx)
	if err != nil || !ok {
		return core.StructuredReport{}, rec, ok, err
	}
	report, err := core.Deserialize(rec.Report)
	if err != nil {
		return core.StructuredReport{}, rec, true, err
	}
	return report, rec, true, nil
}

// List returns every stored record. Elements may be full records or bare
// report blobs; both decode into StoredRecord.
func (c *Client) List(ctx context.Context) ([]core.StoredRecord, error) {
	const op = "list"

	resp, body, err := c.do(ctx, op, http.MethodGet, PathAll, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, rejected(op, resp.StatusCode, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []core.StoredRecord{}, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, corruptErr(op, err)
	}
	out := make([]core.StoredRecord, 0, len(elems))
	for i, raw := range elems {
		rec, err := decodeJSONRecord(raw)
		if err != nil {
			return nil, corruptErr(op, fmt.Errorf("element %d: %w", i, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteRecord removes the record with the given id.
func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	const op = "delete"

	path := PathLatest + "/" + strconv.FormatInt(id, 10)
	resp, body, err := c.do(ctx, op, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return rejected(op, resp.StatusCode, body)
	}
	return nil
}

// do sends one request and reads the whole response body.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &core.StoreError{Kind: core.StoreNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &core.StoreError{Kind: core.StoreNetwork, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	return resp, data, nil
}

// decodeRecord normalizes both response shapes into a StoredRecord.
// JSON bodies are either a record (with a "report" key) or the report
// itself; any other content type is the report as raw UTF-8 bytes.
func decodeRecord(h http.Header, body []byte) (core.StoredRecord, error) {
	var rec core.StoredRecord
	var err error
	if isJSONContent(h.Get("Content-Type")) {
		rec, err = decodeJSONRecord(body)
	} else {
		if !utf8.Valid(body) {
			return core.StoredRecord{}, errors.New("encoding error: report bytes are not valid UTF-8")
		}
		rec = core.StoredRecord{Report: bytes.Clone(body)}
	}
	if err != nil {
		return core.StoredRecord{}, err
	}

	if rec.ID == 0 {
		if id, err := strconv.ParseInt(h.Get(HeaderRecordID), 10, 64); err == nil {
			rec.ID = id
		}
	}
	if rec.FileName == "" {
		rec.FileName = h.Get(HeaderFileName)
	}
	if rec.UploadDate.IsZero() {
		if ts, err := time.Parse(time.RFC3339Nano, h.Get(HeaderUploadDate)); err == nil {
			rec.UploadDate = ts
		}
	}
	return rec, nil
}

// decodeJSONRecord decodes one JSON value that is a record object, a report
// object, or a bare byte blob (numeric array or string).
func decodeJSONRecord(raw []byte) (core.StoredRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return core.StoredRecord{}, errors.New("empty JSON value")
	}

	if raw[0] != '{' {
		var blob core.ByteArray
		if err := json.Unmarshal(raw, &blob); err != nil {
			return core.StoredRecord{}, err
		}
		return core.StoredRecord{Report: blob}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return core.StoredRecord{}, err
	}
	if _, ok := fields["report"]; !ok {
		return core.StoredRecord{Report: bytes.Clone(raw)}, nil
	}

	var rec core.StoredRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.StoredRecord{}, err
	}
	return rec, nil
}

func isJSONContent(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func rejected(op string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &core.StoreError{
		Kind:   core.StoreRejected,
		Op:     op,
		Status: status,
		Body:   strings.TrimSpace(string(body)),
	}
}

func corruptErr(op string, err error) error {
	return &core.StoreError{Kind: core.StoreCorrupt, Op: op, Err: err}
}

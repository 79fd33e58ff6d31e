package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/storeclient"
)

const testURL = "http://market.test"

const sampleCSV = "Vegetables,Carrots scarce this week\n" +
	"Item-name,category,Price\n" +
	"Carrot,vegetables,120\n" +
	"Tuna,fish,900\n" +
	"Leeks,Vegetables,80\n" +
	"Salt,,40\n"

// newTestApp returns an app whose HTTP traffic goes to httpmock.
func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	return &app{
		getenv:     func(string) string { return "" },
		httpClient: hc,
	}
}

// execute runs marketctl with args and returns stdout and stderr.
func execute(a *app, args ...string) (string, string, error) {
	cmd := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--url", testURL}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func serializedSample(t *testing.T, fileName string) []byte {
	t.Helper()
	p := &core.Parser{Now: func() time.Time { return time.Date(2024, 3, 15, 6, 30, 0, 0, time.UTC) }}
	report, err := p.Parse(strings.NewReader(sampleCSV), fileName)
	require.NoError(t, err)
	data, err := core.Serialize(report)
	require.NoError(t, err)
	return data
}

func registerLatest(t *testing.T, id, fileName string) {
	t.Helper()
	data := serializedSample(t, fileName)
	httpmock.RegisterResponder(http.MethodGet, testURL+storeclient.PathLatest,
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewBytesResponse(http.StatusOK, data)
			resp.Header.Set("Content-Type", "application/octet-stream")
			resp.Header.Set(storeclient.HeaderRecordID, id)
			resp.Header.Set(storeclient.HeaderFileName, fileName)
			resp.Header.Set(storeclient.HeaderUploadDate, "2024-03-15T07:00:00Z")
			return resp, nil
		})
}

// =============================================================================
// parse
// =============================================================================

func TestParseCommand_Summary(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "wednesday.csv", sampleCSV)

	out, _, err := execute(a, "parse", path)

	require.NoError(t, err)
	for _, want := range []string{
		"wednesday.csv",
		"Items:         4",
		"(VEGETABLES, FISH, UNCATEGORIZED)",
		"Special notes: 1",
		"Price:         40 - 900, mean 285.00 over 4 items",
	} {
		assert.Contains(t, out, want)
	}
	assert.Zero(t, httpmock.GetTotalCallCount(), "parse never touches the network")
}

func TestParseCommand_JSON(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "daily.csv", sampleCSV)

	out, _, err := execute(a, "parse", "--json", path)

	require.NoError(t, err)
	var report core.StructuredReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "daily.csv", report.Metadata.FileName)
	assert.Equal(t, []string{"Item-name", "category", "Price"}, report.Headers)
	assert.Len(t, report.Items, 4)
}

func TestParseCommand_InvalidCSV(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "bad.csv", "Item-name,Price\nCarrot,\"12\n")

	_, _, err := execute(a, "parse", path)

	var pe *core.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad.csv", pe.FileName)
	assert.Equal(t, "FILE002", core.MapError(err).Code)
}

func TestParseCommand_MissingFile(t *testing.T) {
	a := newTestApp(t)

	_, _, err := execute(a, "parse", filepath.Join(t.TempDir(), "nope.csv"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// push
// =============================================================================

func TestPushCommand(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "thursday.csv", sampleCSV)

	var gotKey string
	var gotBody struct {
		FileName string          `json:"file_name"`
		Report   json.RawMessage `json:"report"`
	}
	httpmock.RegisterResponder(http.MethodPost, testURL+storeclient.PathAdd,
		func(req *http.Request) (*http.Response, error) {
			gotKey = req.Header.Get("X-API-Key")
			if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]any{
				"id":         7,
				"file_name":  gotBody.FileName,
				"uploaddate": "2024-03-15T07:00:00Z",
				"report":     gotBody.Report,
			})
		})

	out, _, err := execute(a, "--api-key", "k1", "push", path)

	require.NoError(t, err)
	assert.Equal(t, "stored report 7 (thursday.csv, 4 items)\n", out)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, "thursday.csv", gotBody.FileName)
	assert.True(t, bytes.HasPrefix(gotBody.Report, []byte("[")), "report travels as a numeric byte array")
}

func TestPushCommand_StoreUnreachable(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "a.csv", sampleCSV)

	_, _, err := execute(a, "push", path)

	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, core.StoreNetwork, se.Kind)
	assert.True(t, core.IsUserFacing(err))
}

func TestPushCommand_VerboseLogsToStderr(t *testing.T) {
	a := newTestApp(t)
	path := writeCSV(t, "a.csv", sampleCSV)
	httpmock.RegisterResponder(http.MethodPost, testURL+storeclient.PathAdd,
		httpmock.NewStringResponder(http.StatusCreated, ""))

	_, stderr, err := execute(a, "-v", "push", path)

	require.NoError(t, err)
	assert.Contains(t, stderr, "report persisted")
}

// =============================================================================
// latest / list / delete
// =============================================================================

func TestLatestCommand(t *testing.T) {
	a := newTestApp(t)
	registerLatest(t, "3", "monday-final.csv")

	out, _, err := execute(a, "latest")

	require.NoError(t, err)
	assert.Contains(t, out, "Record 3, uploaded")
	assert.Contains(t, out, "monday-final.csv")
	assert.Contains(t, out, "Items:         4")
}

func TestLatestCommand_Empty(t *testing.T) {
	a := newTestApp(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+storeclient.PathLatest,
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	out, _, err := execute(a, "latest")

	require.NoError(t, err)
	assert.Equal(t, "no report stored\n", out)
}

func TestLatestCommand_CorruptReport(t *testing.T) {
	a := newTestApp(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+storeclient.PathLatest,
		httpmock.NewStringResponder(http.StatusOK, `{"metadata":{},"headers":[]}`))

	_, _, err := execute(a, "latest")

	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, core.StoreCorrupt, se.Kind)
	assert.Equal(t, "items", se.Field)
}

func TestListCommand(t *testing.T) {
	a := newTestApp(t)
	report := serializedSample(t, "fromreport.csv")
	httpmock.RegisterResponder(http.MethodGet, testURL+storeclient.PathAll,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, []any{
			map[string]any{"id": 2, "file_name": "tuesday.csv", "uploaddate": "2024-03-16T07:00:00Z", "report": core.ByteArray(report)},
			map[string]any{"id": 1, "uploaddate": "2024-03-15T07:00:00Z", "report": core.ByteArray(report)},
		}))

	out, _, err := execute(a, "list")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^ID\s+FILE\s+UPLOADED$`, lines[0])
	assert.Regexp(t, `^2\s+tuesday\.csv\s+2024-03-1`, lines[1])
	assert.Regexp(t, `^1\s+fromreport\.csv\s+`, lines[2])
}

func TestListCommand_Empty(t *testing.T) {
	a := newTestApp(t)
	httpmock.RegisterResponder(http.MethodGet, testURL+storeclient.PathAll,
		httpmock.NewStringResponder(http.StatusOK, "[]"))

	out, _, err := execute(a, "list")

	require.NoError(t, err)
	assert.Equal(t, "no reports stored\n", out)
}

func TestDeleteCommand(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		status  int
		wantOut string
		wantErr string
	}{
		{"deleted", "5", http.StatusNoContent, "deleted report 5\n", ""},
		{"unknown id", "5", http.StatusNotFound, "", "404"},
		{"not a number", "five", 0, "", "invalid request"},
		{"zero", "0", 0, "", "invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			if tt.status != 0 {
				httpmock.RegisterResponder(http.MethodDelete, testURL+storeclient.PathLatest+"/"+tt.arg,
					httpmock.NewStringResponder(tt.status, ""))
			}

			out, _, err := execute(a, "delete", tt.arg)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

// =============================================================================
// query
// =============================================================================

func TestQueryCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		want     []string
		dontWant []string
		footer   string
	}{
		{"everything", nil, []string{"Carrot", "Tuna", "Leeks", "Salt"}, nil, "4 of 4 items"},
		{"first tab", []string{"--tab", "1"}, []string{"Carrot", "Leeks"}, []string{"Tuna", "Salt"}, "2 of 4 items"},
		{"search", []string{"-q", "TUN"}, []string{"Tuna"}, []string{"Carrot"}, "1 of 4 items"},
		{"category label", []string{"--category", "fish"}, []string{"Tuna"}, []string{"Leeks"}, "1 of 4 items"},
		{"tab past the end", []string{"--tab", "8"}, nil, []string{"Carrot"}, "0 of 4 items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			registerLatest(t, "1", "a.csv")

			out, _, err := execute(a, append([]string{"query"}, tt.args...)...)

			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "ITEM NAME"), out)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, w := range tt.dontWant {
				assert.NotContains(t, out, w)
			}
			assert.Contains(t, out, tt.footer)
		})
	}
}

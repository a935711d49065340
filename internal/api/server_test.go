package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-diagnostics/internal/config"
	"obd-diagnostics/internal/diagnostics"
	"obd-diagnostics/internal/refranges"
)

const tripCSV = "time(ms);IC_SPDMTR(km/h);RPM(1/min);FUELLVL(%);OPENLOOP\n" +
	"0;0;800;50;ON\n" +
	"1000;30;1500;50;OFF\n" +
	"2000;60;2200;49,5;OFF\n" +
	"3000;0;800;49,5;OFF\n"

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
}

type listEnvelope struct {
	Success bool                     `json:"success"`
	Data    []map[string]interface{} `json:"data"`
	Meta    struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	table, err := refranges.Parse([]byte(`
corsa:
  flex:
    "FUELLVL(%)": [5, 100]
    "RPM(1/min)": [700, 3000]
`))
	require.NoError(t, err)
	engine := diagnostics.NewEngine(config.DefaultConfig())
	return NewServer(engine, TableSource{Table: table}, nil, 1)
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(t), httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRegistryListsParameters(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, httptest.NewRequest("GET", "/api/v1/registry", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, s.engine.Registry().Len(), resp.Meta.Total)
	assert.NotEmpty(t, resp.Data[0]["name"])
}

func TestRanges(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest("GET", "/api/v1/ranges", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list listEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "corsa", list.Data[0]["model"])

	rec = do(s, httptest.NewRequest("GET", "/api/v1/ranges?model=Corsa&fuel=Flex", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "FUELLVL")

	rec = do(s, httptest.NewRequest("GET", "/api/v1/ranges?model=onix&fuel=flex", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, httptest.NewRequest("GET", "/api/v1/ranges?model=onix", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRawBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/analyze?model=corsa&fuel=flex&name=trip.csv", strings.NewReader(tripCSV))
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "corsa", resp.Data["vehicle"].(map[string]interface{})["model"])
	source := resp.Data["source"].(map[string]interface{})
	assert.Equal(t, "trip.csv", source["name"])
	assert.NotEmpty(t, resp.Data["entries"])
}

func TestAnalyzeMultipart(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "trip.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(tripCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/analyze?model=corsa&fuel=flex", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status"`)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, httptest.NewRequest("POST", "/api/v1/analyze", strings.NewReader(tripCSV)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "model and fuel")

	rec = do(s, httptest.NewRequest("POST", "/api/v1/analyze?model=corsa&fuel=flex", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, httptest.NewRequest("POST", "/api/v1/analyze?model=corsa&fuel=flex&format=parquet", strings.NewReader(tripCSV)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported format")
}

func TestAnalyzeRejectsOversizedUpload(t *testing.T) {
	s := newTestServer(t)
	big := strings.Repeat("0;0;800;50;OFF\n", (2<<20)/15)
	req := httptest.NewRequest("POST", "/api/v1/analyze?model=corsa&fuel=flex", strings.NewReader(tripCSV+big))
	rec := do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/odatabatch/internal/config"
	"github.com/hanpama/odatabatch/internal/executor"
	"github.com/hanpama/odatabatch/internal/grpcdispatch"
	"github.com/hanpama/odatabatch/internal/httpdispatch"
)

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "print-proto")

	out.Reset()
	require.NoError(t, run([]string{"help", "serve"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "-upstream.grpc")

	assert.Error(t, run([]string{"help", "compile"}, &out, &bytes.Buffer{}))
}

func TestRun_UnknownCommand(t *testing.T) {
	var errOut bytes.Buffer
	err := run([]string{"deploy"}, &bytes.Buffer{}, &errOut)
	require.EqualError(t, err, `unknown command "deploy"`)
	assert.Contains(t, errOut.String(), "USAGE:")

	err = run(nil, &bytes.Buffer{}, &errOut)
	require.EqualError(t, err, "missing command")
}

func TestParseServe_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("ODATABATCH_ADDR", ":9000")
	t.Setenv("ODATABATCH_UPSTREAM_HTTP", "http://backend/odata/")
	t.Setenv("ODATABATCH_METADATA_HEADERS", "X-Tenant")

	cfg, err := parseServe([]string{
		"-server.addr", ":9100",
		"-server.timeout", "5s",
		"-server.metadata-header", "Authorization",
		"-server.metadata-header", "X-Trace",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "http://backend/odata/", cfg.UpstreamHTTP)
	assert.Equal(t, []string{"Authorization", "X-Trace"}, cfg.MetadataHeaders)
}

func TestParseServe_Upstream(t *testing.T) {
	_, err := parseServe(nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "is required")

	_, err = parseServe([]string{"-upstream.http", "http://a/", "-upstream.grpc", "*=b:1"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "mutually exclusive")

	var errOut bytes.Buffer
	_, err = parseServe([]string{"-server.concurrency", "x"}, &errOut)
	assert.Error(t, err)
	assert.Contains(t, errOut.String(), "serve FLAGS:")
}

func TestNewDispatcher(t *testing.T) {
	d, closer, err := newDispatcher(&config.Config{UpstreamHTTP: "http://backend/odata/", ServiceRoot: "/odata/"})
	require.NoError(t, err)
	assert.IsType(t, &httpdispatch.Dispatcher{}, d)
	assert.NoError(t, closer())

	d, closer, err = newDispatcher(&config.Config{UpstreamGRPC: "*=localhost:50051", MaxConnsPerEndpoint: 1, RPCTimeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &grpcdispatch.Dispatcher{}, d)
	assert.NoError(t, closer())

	_, _, err = newDispatcher(&config.Config{UpstreamGRPC: "Employees="})
	assert.ErrorContains(t, err, "grpc endpoints")

	_, _, err = newDispatcher(&config.Config{UpstreamHTTP: "ftp://backend/"})
	assert.ErrorContains(t, err, "http dispatcher")
}

func TestRouter(t *testing.T) {
	d := executor.NewMockDispatcher(map[string]executor.MockHandler{
		"GET Employees": executor.NewMockStatusHandler(http.StatusOK, "[]"),
	})
	cfg := &config.Config{ServiceRoot: "/odata/", Timeout: time.Second}
	h, err := newHandler(cfg, d)
	require.NoError(t, err)
	router := newRouter(cfg.ServiceRoot, h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	req := httptest.NewRequest("POST", "/odata/$batch", strings.NewReader(`{"operations":[{"method":"GET","url":"Employees"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "multipart/mixed; boundary=batch_"))
	assert.Contains(t, w.Body.String(), "HTTP/1.1 200 OK")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/odata/$batch", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPrintProto(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"print-proto"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "service Dispatcher")

	dir := t.TempDir()
	require.NoError(t, run([]string{"print-proto", "-out", dir}, &bytes.Buffer{}, &bytes.Buffer{}))
	b, err := os.ReadFile(filepath.Join(dir, "odatabatch", "v1", "dispatch.proto"))
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(b))
}

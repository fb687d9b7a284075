package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/common/middleware"
	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/dlq"
	"github.com/telhawk-systems/flowhawk/internal/features"
	"github.com/telhawk-systems/flowhawk/internal/handlers"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/pipeline"
	"github.com/telhawk-systems/flowhawk/internal/registry"
	"github.com/telhawk-systems/flowhawk/internal/repository"
	"github.com/telhawk-systems/flowhawk/internal/service"
	"github.com/telhawk-systems/flowhawk/internal/stream"
	"github.com/telhawk-systems/flowhawk/internal/synthetic"
)

const connLog = "#fields\tts\tuid\tid.orig_h\tid.orig_p\tid.resp_h\tid.resp_p\tproto\tservice\tduration\torig_bytes\tresp_bytes\tconn_state\n" +
	"1499090158.000000\tCabc\t10.0.0.1\t51000\t10.0.0.2\t80\ttcp\thttp\t2.5\t120\t0\tS0\n" +
	"1499090159.000000\tCdef\t10.0.0.3\t53000\t10.0.0.4\t53\tudp\tdns\t0.01\t40\t80\tSF\n"

// durationModel flags flows longer than one second as DoS.
type durationModel struct{}

func (durationModel) NumClasses() int { return 2 }

func (durationModel) PredictProba(x []float64) ([]float64, error) {
	if x[0] > 1 {
		return []float64{0.1, 0.9}, nil
	}
	return []float64{0.95, 0.05}, nil
}

type testEnv struct {
	router http.Handler
	alerts *service.AlertService
	runner *synthetic.Runner
	queue  *dlq.Queue
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	reg, err := registry.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	adapter, err := classifier.New(durationModel{}, []string{"BENIGN", "DoS"}, features.LeanFeatureNames)
	require.NoError(t, err)
	p, err := pipeline.New(adapter, nil)
	require.NoError(t, err)

	alerts := service.NewAlertService(repository.NewMemoryRepository(), stream.NewBroker(10), logging.Discard())
	datasets := service.NewDatasetService(
		service.DatasetConfig{UploadDir: t.TempDir(), MaxUploadBytes: maxUpload},
		reg, p, alerts, nil, logging.Discard(),
	)
	runner := synthetic.NewRunner(synthetic.NewGenerator(7, nil), alerts, 60, logging.Discard())
	t.Cleanup(func() { runner.Stop() })
	queue, err := dlq.NewQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	h := handlers.NewHandler(handlers.Config{
		Alerts:    alerts,
		Datasets:  datasets,
		Synthetic: runner,
		DLQ:       queue,
		Checks:    []handlers.Check{{Name: "redis", Ping: reg.Ping}},
		Logger:    logging.Discard(),
		KeepAlive: 20 * time.Millisecond,
	})
	return &testEnv{
		router: NewRouter(h, RouterConfig{MaxUploadBytes: 1 << 20}),
		alerts: alerts,
		runner: runner,
		queue:  queue,
		redis:  mr,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func validAlert() map[string]interface{} {
	return map[string]interface{}{
		"timestamp":   "2024-05-01T11:00:00Z",
		"severity":    "Critical",
		"attack_type": "DDoS",
		"src_ip":      "10.0.0.1",
		"src_port":    51000,
		"dst_ip":      "10.0.0.2",
		"dst_port":    80,
		"protocol":    "6",
		"rule_id":     "FLOW-1",
		"rule_name":   "FlowClassifier DDoS",
		"model_score": 0.97,
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"healthy"`)
	assert.NotEmpty(t, rr.Header().Get(middleware.HeaderRequestID))

	rr = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	env.redis.Close()
	rr = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get(middleware.HeaderRequestID))
}

func TestAlertsAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := env.do(t, http.MethodPost, "/api/v1/alerts/", jsonBody(t, validAlert()))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created models.Alert
	decode(t, rr, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.SeverityCritical, created.Severity)
	assert.Equal(t, models.ProtocolTCP, created.Protocol)
	assert.Equal(t, service.SourceAPI, created.Meta[models.MetaSource])

	low := validAlert()
	low["severity"] = "low"
	low["attack_type"] = "benign"
	low["model_label"] = "benign"
	low["model_score"] = 0.1
	rr = env.do(t, http.MethodPost, "/api/v1/alerts/", jsonBody(t, low))
	require.Equal(t, http.StatusCreated, rr.Code)

	t.Run("get", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/alerts/"+created.ID, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		rr = env.do(t, http.MethodGet, "/api/v1/alerts/nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("list with filters", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/alerts/?severity=critical,high&page_size=10", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var page models.AlertPage
		decode(t, rr, &page)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 10, page.PageSize)
		assert.Equal(t, created.ID, page.Items[0].ID)

		rr = env.do(t, http.MethodGet, "/api/v1/alerts/?attack_type=benign&attack_type=ddos", nil)
		decode(t, rr, &page)
		assert.Equal(t, 2, page.Total)

		rr = env.do(t, http.MethodGet, "/api/v1/alerts/?severity=extreme", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		rr = env.do(t, http.MethodGet, "/api/v1/alerts/?from=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("export", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/alerts/export.csv?severity=critical", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "id,timestamp,severity"))
		assert.Contains(t, lines[1], "0.9700")
	})

	t.Run("aggregates", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/v1/alerts/stats", nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/v1/dashboard", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var dash map[string]json.RawMessage
		decode(t, rr, &dash)
		assert.Contains(t, dash, "synthetic")
		var overview models.Overview
		require.NoError(t, json.Unmarshal(dash["overview"], &overview))
		assert.Equal(t, 2, overview.Total)
		assert.Equal(t, 1, overview.Malicious)

		rr = env.do(t, http.MethodGet, "/api/v1/reports/summary?from=2024-05-01&to=2024-05-02", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"total":2`)

		rr = env.do(t, http.MethodGet, "/api/v1/reports/summary?from=2024-05-02&to=2024-05-01", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = env.do(t, http.MethodGet, "/api/v1/model/performance?since=2024-01-01T00:00:00Z", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var perf models.ModelPerformance
		decode(t, rr, &perf)
		assert.Equal(t, 2, perf.TotalAlerts)

		rr = env.do(t, http.MethodGet, "/api/v1/model/performance?since=soon", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCreateAlert_Validation(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := env.do(t, http.MethodPost, "/api/v1/alerts/", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for field, value := range map[string]interface{}{
		"severity":    "urgent",
		"attack_type": "teleport",
		"src_ip":      "",
		"model_score": 1.5,
		"model_label": "maybe",
	} {
		body := validAlert()
		body[field] = value
		rr := env.do(t, http.MethodPost, "/api/v1/alerts/", jsonBody(t, body))
		assert.Equal(t, http.StatusBadRequest, rr.Code, field)
	}

	n, err := env.alerts.Total(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDatasetsAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := env.upload(t, "lab.csv", connLog)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var up service.UploadResult
	decode(t, rr, &up)
	id := up.Dataset.ID
	assert.Len(t, up.Preview, 2)

	rr = env.do(t, http.MethodGet, "/api/v1/datasets/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)

	rr = env.do(t, http.MethodGet, "/api/v1/datasets/preview?dataset_id="+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Cabc")

	rr = env.do(t, http.MethodGet, "/api/v1/datasets/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/datasets/preview?dataset_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/v1/datasets/preview?use_default=true", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/datasets/simulate", jsonBody(t, map[string]interface{}{"dataset_id": id, "count": 5}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var sim service.SimulateResult
	decode(t, rr, &sim)
	assert.Equal(t, 2, sim.Ingested)

	rr = env.do(t, http.MethodPost, "/api/v1/datasets/simulate", jsonBody(t, map[string]interface{}{"dataset_id": id, "attack_type": "ddos"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/v1/datasets/simulate", jsonBody(t, map[string]interface{}{"dataset_id": id, "count": 99}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/v1/datasets/simulate", strings.NewReader("nope"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/v1/datasets/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/v1/datasets/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadDataset_Rejections(t *testing.T) {
	env := newTestEnv(t, 64)

	rr := env.upload(t, "lab.txt", connLog)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.upload(t, "lab.csv", connLog)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = env.upload(t, "bad.csv", "a,b\n1,2\n")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body struct {
		Error   string   `json:"error"`
		Missing []string `json:"missing"`
	}
	decode(t, rr, &body)
	assert.Contains(t, body.Missing, "uid")

	rr = env.do(t, http.MethodPost, "/api/v1/datasets/", strings.NewReader("{}"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyntheticAPI(t *testing.T) {
	env := newTestEnv(t, 0)

	rr := env.do(t, http.MethodGet, "/api/v1/synthetic", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status synthetic.Status
	decode(t, rr, &status)
	assert.False(t, status.Enabled)
	assert.Equal(t, 60, status.RatePerMin)

	rr = env.do(t, http.MethodPut, "/api/v1/synthetic", jsonBody(t, map[string]interface{}{"enabled": true, "rate_per_min": 600}))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &status)
	assert.True(t, status.Enabled)
	assert.Equal(t, 600, status.RatePerMin)

	assert.Eventually(t, func() bool {
		n, err := env.alerts.Total(context.Background())
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)

	rr = env.do(t, http.MethodPut, "/api/v1/synthetic", jsonBody(t, map[string]interface{}{"enabled": false}))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &status)
	assert.False(t, status.Enabled)

	rr = env.do(t, http.MethodPut, "/api/v1/synthetic", strings.NewReader("?"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDLQAPI(t *testing.T) {
	env := newTestEnv(t, 0)
	require.NoError(t, env.queue.Write(context.Background(), dlq.SkippedRow{Source: "x.csv", Reason: "timestamp"}))

	rr := env.do(t, http.MethodGet, "/api/v1/dlq", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats dlq.Stats
	decode(t, rr, &stats)
	assert.True(t, stats.Enabled)
	assert.Equal(t, 1, stats.Pending)

	rr = env.do(t, http.MethodGet, "/api/v1/dlq/entries?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"count":1`)

	rr = env.do(t, http.MethodDelete, "/api/v1/dlq", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, env.queue.Stats().Pending)
}

func TestStreamAlerts(t *testing.T) {
	env := newTestEnv(t, 0)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/alerts/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	rr := env.do(t, http.MethodPost, "/api/v1/alerts/", jsonBody(t, validAlert()))
	require.Equal(t, http.StatusCreated, rr.Code)

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	assert.Equal(t, "alert", event)
	var a models.Alert
	require.NoError(t, json.Unmarshal([]byte(data), &a))
	assert.Equal(t, models.AttackDDoS, a.AttackType)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)
	env.do(t, http.MethodGet, "/healthz", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `flowhawk_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

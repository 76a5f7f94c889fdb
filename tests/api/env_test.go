package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/screener/internal/app"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/models"
	"github.com/bobmcallan/screener/internal/server"
	tcommon "github.com/bobmcallan/screener/tests/common"
)

// upstreams fakes EODHD and Yahoo Finance with a small fixed market.
type upstreams struct {
	eodhd      *httptest.Server
	yahoo      *httptest.Server
	sparkCalls atomic.Int32
	eodCalls   atomic.Int32
}

func unix(date string) int64 {
	t, _ := time.Parse(models.DateLayout, date)
	return t.Unix()
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{}

	u.eodhd = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exchange-symbol-list/US":
			json.NewEncoder(w).Encode([]models.Symbol{
				{Code: "AAA", Name: "Alpha Corp", Exchange: "NASDAQ", Type: "Common Stock"},
				{Code: "BBB", Name: "Beta Inc", Exchange: "NASDAQ", Type: "Common Stock"},
				{Code: "CCC", Name: "Gamma Ltd", Exchange: "NASDAQ", Type: "Common Stock"},
			})
		case "/exchange-symbol-list/KO":
			json.NewEncoder(w).Encode([]models.Symbol{
				{Code: "005930", Name: "Samsung Electronics", Type: "Common Stock"},
				{Code: "000660", Name: "SK hynix", Type: "Common Stock"},
				{Code: "KOSPI200", Name: "Index", Type: "INDEX"},
			})
		case "/eod/005930.KO":
			u.eodCalls.Add(1)
			closes := []float64{100, 100, 100, 100, 100, 75, 70, 95, 110}
			writeBars(w, closes)
		case "/eod/000660.KO":
			u.eodCalls.Add(1)
			writeBars(w, []float64{100, 101, 102, 103, 104, 105, 106, 107, 108})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.eodhd.Close)

	u.yahoo = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.sparkCalls.Add(1)
		ts := fmt.Sprintf("[%d,%d,%d]", unix("2024-01-02"), unix("2024-01-03"), unix("2024-01-04"))
		fmt.Fprintf(w, `{"spark":{"result":[
			{"symbol":"AAA","response":[{"timestamp":%s,"indicators":{"quote":[{"close":[100,105,110]}]}}]},
			{"symbol":"BBB","response":[{"timestamp":%s,"indicators":{"quote":[{"close":[100,95,90]}]}}]},
			{"symbol":"CCC","response":[{"timestamp":%s,"indicators":{"quote":[{"close":[100,120,150]}]}}]}
		],"error":null}}`, ts, ts, ts)
	}))
	t.Cleanup(u.yahoo.Close)

	return u
}

// writeBars writes consecutive daily bars from 2024-01-01.
func writeBars(w http.ResponseWriter, closes []float64) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]map[string]any, len(closes))
	for i, c := range closes {
		bars[i] = map[string]any{
			"date":           start.AddDate(0, 0, i).Format(models.DateLayout),
			"close":          c,
			"adjusted_close": c,
		}
	}
	json.NewEncoder(w).Encode(bars)
}

// env is a running screener on a real Redis with faked upstreams.
type env struct {
	t         *testing.T
	upstreams *upstreams
	redisAddr string
	namespace string
	app       *app.App
	server    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	redis := tcommon.StartRedis(t)

	e := &env{
		t:         t,
		upstreams: newUpstreams(t),
		redisAddr: redis.Addr(),
		namespace: "screener_test_" + uuid.New().String()[:8],
	}
	e.start()
	t.Cleanup(e.stop)
	return e
}

// start builds a fresh app and server sharing the env's Redis namespace.
func (e *env) start() {
	e.t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Cache.Backend = "redis"
	cfg.Cache.Namespace = e.namespace
	cfg.Redis.Addr = e.redisAddr
	cfg.Clients.EODHD.BaseURL = e.upstreams.eodhd.URL
	cfg.Clients.EODHD.APIKey = "test-key"
	cfg.Clients.Yahoo.BaseURL = e.upstreams.yahoo.URL
	cfg.Scheduler.Enabled = false

	a, err := app.New(context.Background(), cfg, common.NewSilentLogger())
	require.NoError(e.t, err)

	e.app = a
	e.server = httptest.NewServer(server.NewServer(a).Handler())
}

func (e *env) stop() {
	if e.server != nil {
		e.server.Close()
		e.server = nil
	}
	if e.app != nil {
		e.app.Close()
		e.app = nil
	}
}

// restart simulates a process restart: in-process state is lost, Redis is kept.
func (e *env) restart() {
	e.stop()
	e.start()
}

func (e *env) do(method, path string, body any) (int, []byte) {
	e.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, buf.Bytes()
}

func (e *env) decode(data []byte, v any) {
	e.t.Helper()
	assert.NoError(e.t, json.Unmarshal(data, v), string(data))
}

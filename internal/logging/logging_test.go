package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := global.Load()
	UseLogger(zap.New(core))
	t.Cleanup(func() { global.Store(prev) })
	return logs
}

func TestWithRequestIDTagsEntries(t *testing.T) {
	logs := observe(t)
	ctx := WithRequestID(context.Background(), "req-1")
	WithContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-1" {
		t.Errorf("request_id = %v", got)
	}
}

func TestTransportForwardsRequestID(t *testing.T) {
	logs := observe(t)
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	hc := &http.Client{Transport: &Transport{}}
	ctx := WithRequestID(context.Background(), "req-2")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/company/get_all", nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if seen != "req-2" {
		t.Errorf("X-Request-ID = %q", seen)
	}
	calls := logs.FilterMessage("api call").All()
	if len(calls) != 1 {
		t.Fatalf("got %d api call entries", len(calls))
	}
	fields := calls[0].ContextMap()
	if fields["path"] != "/company/get_all" || fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("fields = %v", fields)
	}
}

func TestInitConsole(t *testing.T) {
	prev := global.Load()
	t.Cleanup(func() { global.Store(prev) })
	if err := Init(Config{Level: "warn", Format: "console", OutputPath: "stderr"}); err != nil {
		t.Fatal(err)
	}
	if L().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !L().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

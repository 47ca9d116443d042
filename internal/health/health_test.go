package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, h *Handler, path string) (int, report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthzAlwaysOK(t *testing.T) {
	failing := Check{Name: "camera", Run: func(context.Context) error { return errors.New("down") }}
	code, rep := serve(t, New(failing), "/healthz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Fatalf("healthz = %d %+v", code, rep)
	}
}

func TestReadyz(t *testing.T) {
	ok := Check{Name: "speech", Run: func(context.Context) error { return nil }}
	bad := Check{Name: "detector", Run: func(context.Context) error { return errors.New("model not loaded") }}

	code, rep := serve(t, New(ok), "/readyz")
	if code != http.StatusOK || rep.Checks["speech"] != "ok" {
		t.Fatalf("readyz = %d %+v", code, rep)
	}

	code, rep = serve(t, New(ok, bad), "/readyz")
	if code != http.StatusServiceUnavailable || rep.Status != "fail" {
		t.Fatalf("readyz = %d %+v", code, rep)
	}
	if rep.Checks["detector"] != "fail: model not loaded" || rep.Checks["speech"] != "ok" {
		t.Fatalf("checks = %+v", rep.Checks)
	}
}

package streaminghttp

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/mcpwire/mcpwire/internal/engine"
)

func TestExchangeDefersCommit(t *testing.T) {
	rec := httptest.NewRecorder()
	x := newHTTPExchange(rec)

	if err := x.WriteStatus(429, "Too Many Requests"); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	if err := x.AppendHeader("Retry-After", "30"); err != nil {
		t.Fatalf("AppendHeader: %v", err)
	}
	if x.claimed() {
		t.Fatalf("want uncommitted before first body write")
	}
	if rec.Code != 200 || rec.Body.Len() != 0 {
		t.Fatalf("recorder touched before commit")
	}

	if err := x.WriteBody([]byte("slow down")); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if !x.claimed() {
		t.Fatalf("want claimed after body write")
	}
	if err := x.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if rec.Code != 429 {
		t.Fatalf("want 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("want Retry-After header, got %q", got)
	}
	if rec.Body.String() != "slow down" {
		t.Fatalf("want body, got %q", rec.Body.String())
	}
}

func TestExchangeEndWithoutBodyDefaultsOK(t *testing.T) {
	rec := httptest.NewRecorder()
	x := newHTTPExchange(rec)

	if err := x.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if rec.Code != 200 {
		t.Fatalf("want 200 default, got %d", rec.Code)
	}
}

func TestExchangeRejectsWritesAfterClose(t *testing.T) {
	rec := httptest.NewRecorder()
	x := newHTTPExchange(rec)
	x.close()

	if err := x.WriteStatus(500, ""); !errors.Is(err, engine.ErrExchangeClosed) {
		t.Fatalf("WriteStatus: want ErrExchangeClosed, got %v", err)
	}
	if err := x.AppendHeader("X-Late", "1"); !errors.Is(err, engine.ErrExchangeClosed) {
		t.Fatalf("AppendHeader: want ErrExchangeClosed, got %v", err)
	}
	if err := x.WriteBody([]byte("late")); !errors.Is(err, engine.ErrExchangeClosed) {
		t.Fatalf("WriteBody: want ErrExchangeClosed, got %v", err)
	}
	if err := x.End(); !errors.Is(err, engine.ErrExchangeClosed) {
		t.Fatalf("End: want ErrExchangeClosed, got %v", err)
	}
	if rec.Code != 200 || rec.Body.Len() != 0 {
		t.Fatalf("closed exchange must not touch the writer")
	}
}

func TestExchangeHeadersSealAfterCommit(t *testing.T) {
	rec := httptest.NewRecorder()
	x := newHTTPExchange(rec)

	if err := x.WriteBody([]byte("x")); err != nil {
		t.Fatalf("WriteBody: %v", err)
	}
	if err := x.AppendHeader("X-Late", "1"); !errors.Is(err, engine.ErrExchangeClosed) {
		t.Fatalf("want ErrExchangeClosed after commit, got %v", err)
	}
}

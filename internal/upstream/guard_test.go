package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	xerrors "NOLA-Exchange/internal/errors"
)

func TestGuardResolvesTimeoutAndCancelsCallback(t *testing.T) {
	guard := NewGuard(30 * time.Millisecond)
	cancelled := make(chan struct{})

	start := time.Now()
	_, u := guard.Do(context.Background(), "slow", func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	if u == nil || u.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", u)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("guard returned too late: %s", elapsed)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("callback context was not cancelled")
	}
}

func TestGuardReturnsEvenIfCallbackIgnoresContext(t *testing.T) {
	guard := NewGuard(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	_, u := guard.Do(context.Background(), "stuck", func(ctx context.Context) ([]byte, error) {
		<-release
		return []byte(`{}`), nil
	})
	if u == nil || u.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", u)
	}
}

func TestGuardMapsErrors(t *testing.T) {
	guard := NewGuard(time.Second)
	_, u := guard.Do(context.Background(), "p", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("connection refused")
	})
	if u == nil || u.Reason != ReasonTransport {
		t.Fatalf("expected transport, got %+v", u)
	}
	if xerrors.CodeOf(u) != xerrors.CodeUnavailable {
		t.Fatalf("unavailable should carry code UNAVAILABLE, got %s", xerrors.CodeOf(u))
	}

	_, u = guard.Do(context.Background(), "p", func(ctx context.Context) ([]byte, error) {
		return nil, Fail("p", ReasonMalformed, "bad")
	})
	if u == nil || u.Reason != ReasonMalformed {
		t.Fatalf("expected malformed passthrough, got %+v", u)
	}
}

func TestFetcherStatusHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("x-api-key") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"value":"42"}`))
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/broken":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher("test", NewGuard(time.Second), WithHeader("x-api-key", "secret"))

	body, u := f.GetJSON(context.Background(), srv.URL+"/ok", nil)
	if u != nil {
		t.Fatalf("unexpected failure: %v", u)
	}
	if got := gjson.GetBytes(body, "value").String(); got != "42" {
		t.Fatalf("unexpected body value %q", got)
	}

	cases := map[string]Reason{
		"/limited": ReasonRateLimited,
		"/broken":  ReasonMalformed,
		"/missing": ReasonBadStatus,
	}
	for path, want := range cases {
		_, u := f.GetJSON(context.Background(), srv.URL+path, nil)
		if u == nil || u.Reason != want {
			t.Fatalf("%s: expected %s, got %+v", path, want, u)
		}
	}
}

func TestFetcherLocalRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("test", NewGuard(50*time.Millisecond), WithRateLimit(0.1, 1))
	if _, u := f.GetJSON(context.Background(), srv.URL, nil); u != nil {
		t.Fatalf("first call should pass: %v", u)
	}
	_, u := f.GetJSON(context.Background(), srv.URL, nil)
	if u == nil || u.Reason != ReasonRateLimited {
		t.Fatalf("expected rate_limited, got %+v", u)
	}
}

func TestPositiveHelpers(t *testing.T) {
	doc := `{"a":"50000000000000000000","b":0,"c":"abc","n":12.5,"s":"3.5","neg":-1}`
	if n, u := PositiveInt("p", gjson.Get(doc, "a"), "a"); u != nil || n.String() != "50000000000000000000" {
		t.Fatalf("unexpected a: %v %v", n, u)
	}
	if _, u := PositiveInt("p", gjson.Get(doc, "b"), "b"); u == nil || u.Reason != ReasonInvalidValue {
		t.Fatalf("zero must be invalid, got %+v", u)
	}
	if _, u := PositiveInt("p", gjson.Get(doc, "c"), "c"); u == nil || u.Reason != ReasonInvalidValue {
		t.Fatalf("non-integer must be invalid, got %+v", u)
	}
	if _, u := PositiveInt("p", gjson.Get(doc, "zz"), "zz"); u == nil || u.Reason != ReasonMissingField {
		t.Fatalf("missing must be missing_field, got %+v", u)
	}
	if v, ok := PositiveFloat(gjson.Get(doc, "s")); !ok || v != 3.5 {
		t.Fatalf("unexpected s: %v %v", v, ok)
	}
	if _, ok := PositiveFloat(gjson.Get(doc, "neg")); ok {
		t.Fatalf("negative price accepted")
	}
}

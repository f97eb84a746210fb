package epub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storybind/config"
)

func TestFetcher(t *testing.T) {
	log, cfg := setupTest(t)

	tests := []struct {
		name     string
		statuses []int
		wantErr  bool
		wantHits int32
	}{
		{"success", []int{200}, false, 1},
		{"transient then success", []int{503, 200}, false, 2},
		{"too many requests is retried", []int{429, 429, 200}, false, 3},
		{"not found is permanent", []int{404}, true, 1},
		{"forbidden is permanent", []int{403}, true, 1},
		{"retries exhausted", []int{500, 502, 503}, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := hits.Add(1)
				code := tt.statuses[min(int(n), len(tt.statuses))-1]
				w.WriteHeader(code)
				if code == http.StatusOK {
					_, _ = w.Write([]byte("payload"))
				}
			}))
			defer srv.Close()

			f := NewFetcher(&cfg.Fetch, srv.Client(), log)
			data, err := f.Fetch(context.Background(), srv.URL+"/cover")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fetch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(data) != "payload" {
				t.Errorf("Fetch() = %q", data)
			}
			if got := hits.Load(); got != tt.wantHits {
				t.Errorf("server hits = %d, want %d", got, tt.wantHits)
			}
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.statuses[len(tt.statuses)-1] {
					t.Errorf("expected StatusError, got %v", err)
				}
			}
		})
	}
}

func TestFetcher_Headers(t *testing.T) {
	log, cfg := setupTest(t)
	fetchCfg := cfg.Fetch
	fetchCfg.Token = config.SecretString("s3cret")
	fetchCfg.UserAgent = "storybind-test"

	var gotAuth, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := NewFetcher(&fetchCfg, srv.Client(), log).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotUA != "storybind-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetcher_TooLarge(t *testing.T) {
	log, cfg := setupTest(t)
	fetchCfg := cfg.Fetch
	fetchCfg.MaxBytes = 16

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	_, err := NewFetcher(&fetchCfg, srv.Client(), log).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch() error = %v, want ErrTooLarge", err)
	}
	if hits.Load() != 1 {
		t.Errorf("oversized response retried %d times", hits.Load())
	}
}

func TestFetcher_BadURL(t *testing.T) {
	log, cfg := setupTest(t)
	_, err := NewFetcher(&cfg.Fetch, nil, log).Fetch(context.Background(), "http://bad host/\x7f")
	if !errors.Is(err, ErrBadURL) {
		t.Errorf("Fetch() error = %v, want ErrBadURL", err)
	}
}

func TestFetcher_Cancel(t *testing.T) {
	log, cfg := setupTest(t)
	fetchCfg := cfg.Fetch
	fetchCfg.Delay = time.Hour

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewFetcher(&fetchCfg, srv.Client(), log).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("Fetch() did not stop waiting on cancellation")
	}
}

func TestStatusError_Temporary(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		if got := (&StatusError{Code: tt.code}).Temporary(); got != tt.want {
			t.Errorf("StatusError{%d}.Temporary() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

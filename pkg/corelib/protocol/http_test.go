package protocol

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

func TestHTTPProbeHEAD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Disposition", `attachment; filename="test.bin"`)
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	result, err := d.Probe(context.Background(), srv.URL, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.ContentLength != 1024 {
		t.Errorf("ContentLength = %d, want 1024", result.ContentLength)
	}
	if !result.AcceptsRanges {
		t.Error("AcceptsRanges = false, want true")
	}
	if result.SuggestedFilename != "test.bin" {
		t.Errorf("SuggestedFilename = %q, want test.bin", result.SuggestedFilename)
	}
	if result.ETag != `"abc123"` {
		t.Errorf("ETag = %q", result.ETag)
	}
}

func TestHTTPProbeFallsBackToRangedGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Range", "bytes 0-0/2048")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	result, err := d.Probe(context.Background(), srv.URL, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.ContentLength != 2048 {
		t.Errorf("ContentLength = %d, want 2048 from Content-Range fallback", result.ContentLength)
	}
	if !result.AcceptsRanges {
		t.Error("AcceptsRanges = false, want true after 206 fallback")
	}
}

func TestHTTPProbeFallsBackOnHTMLForExtensionlessURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Content-Length", "512")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Range", "bytes 0-0/4096")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	result, err := d.Probe(context.Background(), srv.URL+"/download", corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.ContentLength != 4096 {
		t.Errorf("ContentLength = %d, want 4096 from the ranged-GET fallback, not the HEAD's 512", result.ContentLength)
	}
	if result.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q, want application/octet-stream", result.ContentType)
	}
}

func TestHTTPProbeAcceptsHTMLWhenURLHasExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", "256")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	result, err := d.Probe(context.Background(), srv.URL+"/page.html", corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.ContentLength != 256 {
		t.Errorf("ContentLength = %d, want 256 (HEAD accepted, URL already names .html)", result.ContentLength)
	}
}

func TestHTTPProbeExtendedFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''report%20final.pdf`)
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	result, err := d.Probe(context.Background(), srv.URL, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.SuggestedFilename != "report final.pdf" {
		t.Errorf("SuggestedFilename = %q, want %q", result.SuggestedFilename, "report final.pdf")
	}
}

func TestHTTPFetchRange(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=2-5" {
			t.Errorf("Range header = %q, want bytes=2-5", got)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[2:6])
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	rc, err := d.Fetch(context.Background(), srv.URL, 2, 5, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "2345" {
		t.Errorf("body = %q, want 2345", got)
	}
}

func TestHTTPFetchStatusTranslation(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"range not satisfiable", http.StatusRequestedRangeNotSatisfiable, errs.ErrRangeNotSatisfiable},
		{"service unavailable", http.StatusServiceUnavailable, errs.ErrServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			d := NewHTTP(nil)
			_, err := d.Fetch(context.Background(), srv.URL, 0, -1, corelib.Credentials{})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Fetch error = %v, want wrapping %v", err, tc.wantErr)
			}
		})
	}
}

func TestHTTPFetchRejectsIgnoredRange(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Ignores the Range header entirely and answers 200 with the
		// whole body, as some misconfigured origins/CDNs do.
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	_, err := d.Fetch(context.Background(), srv.URL, 2, 5, corelib.Credentials{})
	if !errors.Is(err, errs.ErrRangeIgnored) {
		t.Fatalf("Fetch error = %v, want wrapping errs.ErrRangeIgnored", err)
	}
}

func TestHTTPFetchAllowsFullBodyAtOffsetZero(t *testing.T) {
	body := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	rc, err := d.Fetch(context.Background(), srv.URL, 0, -1, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func TestHTTPFetchOpenEndedRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=5-" {
			t.Errorf("Range header = %q, want bytes=5-", got)
		}
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	d := NewHTTP(nil)
	rc, err := d.Fetch(context.Background(), srv.URL, 5, -1, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	rc.Close()
}

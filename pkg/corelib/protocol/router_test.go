package protocol

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

func TestSchemeRouterDispatchesByScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewSchemeRouter()
	result, err := r.Probe(context.Background(), srv.URL, corelib.Credentials{})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.ContentLength != 42 {
		t.Errorf("ContentLength = %d, want 42", result.ContentLength)
	}
}

func TestSchemeRouterUnsupportedScheme(t *testing.T) {
	r := NewSchemeRouter()
	_, err := r.Probe(context.Background(), "gopher://example.com/file", corelib.Credentials{})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("error = %v, want ErrUnsupportedScheme", err)
	}
}

func TestSchemeRouterSupportedSchemesSorted(t *testing.T) {
	r := NewSchemeRouter()
	schemes := r.SupportedSchemes()
	for i := 1; i < len(schemes); i++ {
		if schemes[i-1] > schemes[i] {
			t.Fatalf("schemes not sorted: %v", schemes)
		}
	}
	want := []string{"ftp", "ftps", "http", "https", "sftp"}
	if len(schemes) != len(want) {
		t.Fatalf("schemes = %v, want %v", schemes, want)
	}
}

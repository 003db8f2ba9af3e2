package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

const pageBody = "<p>2025-04-07 09:00-10:30<br>Lecture 1</p>"

func TestFetchUsesConditionalCache(t *testing.T) {
	var hits, conditional atomic.Int32
	var broken atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if broken.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(pageBody))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	src := Source{ID: "sys101", URL: srv.URL + "/course?id=1"}
	ctx := context.Background()

	res, err := f.FetchOne(ctx, src)
	if err != nil || res.FromCache || string(res.Body) != pageBody {
		t.Fatalf("first fetch: %+v, %v", res, err)
	}

	res, err = f.FetchOne(ctx, src)
	if err != nil || !res.FromCache || string(res.Body) != pageBody {
		t.Fatalf("second fetch: %+v, %v", res, err)
	}
	if conditional.Load() != 1 {
		t.Fatalf("expected one conditional request, got %d", conditional.Load())
	}

	broken.Store(true)
	res, err = f.FetchOne(ctx, src)
	if err != nil || !res.FromCache {
		t.Fatalf("expected cached fallback on 500: %+v, %v", res, err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", hits.Load())
	}
}

func TestFetchErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	results, errs := f.FetchAll(context.Background(), []Source{{ID: "a", URL: srv.URL}, {ID: "b"}})
	if len(results) != 0 || len(errs) != 2 {
		t.Fatalf("expected 2 errors, got results=%d errs=%v", len(results), errs)
	}
}

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "course.html")
	if err := os.WriteFile(path, []byte(pageBody), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewFetcher(t.TempDir())
	for _, u := range []string{path, "file://" + path} {
		res, err := f.FetchOne(context.Background(), Source{ID: "local", URL: u})
		if err != nil || string(res.Body) != pageBody {
			t.Fatalf("%s: %+v, %v", u, res, err)
		}
	}
}

type fakeRenderer struct{ url string }

func (r *fakeRenderer) RenderHTML(ctx context.Context, url string) (string, error) {
	r.url = url
	return "<html><body>" + pageBody + "</body></html>", nil
}

func TestFetchRender(t *testing.T) {
	f := NewFetcher(t.TempDir())
	src := Source{ID: "js", URL: "https://lms.example.com/course", Render: true}
	if _, err := f.FetchOne(context.Background(), src); err == nil {
		t.Fatal("expected an error without a renderer")
	}

	r := &fakeRenderer{}
	f.Renderer = r
	res, err := f.FetchOne(context.Background(), src)
	if err != nil || r.url != src.URL || len(res.Body) == 0 {
		t.Fatalf("render fetch: %+v, %v", res, err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://lms.example.com/course/e_class_top.cgi?sid=secret": "https://lms.example.com/...(redacted)",
		"http://host?token=x": "http://host/...(redacted)",
		"/tmp/page.html":      "file://...(redacted)",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

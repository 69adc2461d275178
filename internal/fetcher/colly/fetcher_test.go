package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

func TestFetchReturnsStaticPage(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Tap Room</h1></body></html>")
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "menu-test", Timeout: time.Second}, zap.NewNop())
	page, err := f.Fetch(context.Background(), srv.URL+"/venue")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer page.Close()

	if page.URL() != srv.URL+"/venue" {
		t.Fatalf("unexpected url %q", page.URL())
	}
	if n, err := page.Expand(context.Background(), "//a"); n != 0 || err != nil {
		t.Fatalf("expected no-op expand, got %d %v", n, err)
	}
	html, err := page.HTML(context.Background())
	if err != nil || string(html) != "<html><body><h1>Tap Room</h1></body></html>" {
		t.Fatalf("unexpected html %q err=%v", html, err)
	}
	if gotAgent := <-agents; gotAgent != "menu-test" {
		t.Fatalf("expected user agent override, got %q", gotAgent)
	}
	if sp := page.(*StaticPage); sp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", sp.StatusCode)
	}
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	f := New(Config{}, nil)
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}

func TestFetchErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := New(Config{}, nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFetchCancelAbortsRequest(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(10 * time.Second):
			fmt.Fprint(w, "late")
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := New(Config{Timeout: 30 * time.Second}, nil).Fetch(ctx, srv.URL)
		errs <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after cancel")
	}
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request outlived the canceled context")
	}
}

func TestNewConfiguresCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second}, nil)
	if f.base.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", f.base.UserAgent)
	}
	if f.base.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be honored")
	}
	if f.robots == nil {
		t.Fatal("expected robots transport when robots are respected")
	}

	f = New(Config{}, nil)
	if !f.base.IgnoreRobotsTxt || f.robots != nil {
		t.Fatal("expected robots to be ignored by default")
	}
}

func TestFetchResultAttach(t *testing.T) {
	t.Parallel()

	hooks := &stubHooks{}
	res := &fetchResult{}
	res.attach(hooks)
	if hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request: &colly.Request{
			URL: mustParseURL(t, "https://bars.example/final"),
		},
	})
	if res.page == nil || res.page.StatusCode != http.StatusOK || res.page.FinalURL() != "https://bars.example/final" {
		t.Fatalf("unexpected page: %+v", res.page)
	}

	hooks.onError(nil, errors.New("boom"))
	if res.err == nil || res.err.Error() != "boom" {
		t.Fatalf("expected err set, got %v", res.err)
	}
}

func TestStaticPageClose(t *testing.T) {
	t.Parallel()

	page := NewStaticPage("https://bars.example", []byte("<html></html>"))
	page.Close()
	page.Close()
	if html, _ := page.HTML(context.Background()); html != nil {
		t.Fatalf("expected body to be dropped, got %q", html)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

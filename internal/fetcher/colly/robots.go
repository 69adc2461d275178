package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var robotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt requests that time out. A host whose
// robots.txt times out on every attempt is served an allow-all file from then
// on, and is reported as lenient.
type robotsTransport struct {
	base    http.RoundTripper
	sleeper scrape.Sleeper
	backoff []time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	lenient map[string]struct{}
}

func newRobotsTransport(base http.RoundTripper, sleeper scrape.Sleeper, logger *zap.Logger) *robotsTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &robotsTransport{
		base:    base,
		sleeper: sleeper,
		backoff: robotsBackoff,
		logger:  logger,
		lenient: map[string]struct{}{},
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}
	host := req.URL.Hostname()
	if t.Lenient(host) {
		return allowAll(req), nil
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("fetch robots.txt for %s: %w", host, err)
		}
		if attempt == len(t.backoff) {
			break
		}
		if err := t.sleeper.Sleep(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots.txt backoff: %w", err)
		}
	}

	t.mu.Lock()
	t.lenient[host] = struct{}{}
	t.mu.Unlock()
	metrics.ObserveRobotsFallback()
	t.logger.Warn("robots.txt kept timing out; treating host as allow-all", zap.String("host", host))
	return allowAll(req), nil
}

// Lenient reports whether host's robots.txt was replaced by allow-all.
func (t *robotsTransport) Lenient(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.lenient[host]
	return ok
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

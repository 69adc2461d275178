package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/menu-scraper/internal/record"
)

type fakePage struct {
	url    string
	html   []byte
	closed int
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Expand(context.Context, string) (int, error) { return 0, nil }

func (p *fakePage) HTML(context.Context) ([]byte, error) { return p.html, nil }

func (p *fakePage) Close() { p.closed++ }

type fakeFetcher struct {
	pages map[string]*fakePage
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	p := &fakePage{url: url, html: []byte("<html>" + url + "</html>")}
	if f.pages == nil {
		f.pages = map[string]*fakePage{}
	}
	f.pages[url] = p
	return p, nil
}

type fakeParser struct {
	table  *record.Table
	err    error
	failOn map[string]bool
}

func (p *fakeParser) Parse(_ context.Context, page Page) (*record.Table, error) {
	if p.err != nil || p.failOn[page.URL()] {
		return nil, errors.Join(errors.New("unexpected structure"), p.err)
	}
	return p.table, nil
}

type fakeStore struct {
	mu        sync.Mutex
	values    []string
	queryErr  error
	appendErr error
	appended  map[string][]*record.Table
}

func (s *fakeStore) DistinctValues(context.Context, string, string) ([]string, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.values, nil
}

func (s *fakeStore) AppendRecords(_ context.Context, table string, records *record.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.appended == nil {
		s.appended = map[string][]*record.Table{}
	}
	s.appended[table] = append(s.appended[table], records)
	return nil
}

type scriptedScraper struct {
	results map[string]scriptedResult
	calls   []string
}

type scriptedResult struct {
	outcome *Outcome
	err     error
}

func (s *scriptedScraper) Scrape(_ context.Context, target string) (*Outcome, error) {
	s.calls = append(s.calls, target)
	r := s.results[target]
	return r.outcome, r.err
}

type fakeSleeper struct {
	waits []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

type fakeSpool struct {
	saved []*Outcome
	err   error
}

func (s *fakeSpool) Save(_ context.Context, runID string, outcome *Outcome) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, outcome)
	return "mem://" + runID + "/" + outcome.Target, nil
}

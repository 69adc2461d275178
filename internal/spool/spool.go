// Package spool keeps the payload of targets that failed under the continue
// policy, so the fetched page and any parsed rows can be inspected or
// replayed without hitting the site again.
//
// Layout, below the configured prefix:
//
//	<run-id>/<sha256(target)>/page.html
//	<run-id>/<sha256(target)>/records.json   (persist failures only)
//	<run-id>/<sha256(target)>/outcome.json
package spool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/JakeFAU/menu-scraper/internal/clock/system"
	"github.com/JakeFAU/menu-scraper/internal/hash/sha256"
	"github.com/JakeFAU/menu-scraper/internal/scrape"
)

// BlobStore is implemented by the local and GCS stores.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock supplies timestamps for manifests.
type Clock interface {
	Now() time.Time
}

// Spool writes failed outcomes to a BlobStore.
type Spool struct {
	blobs  BlobStore
	prefix string
	hasher *sha256.Hasher
	clock  Clock
}

var _ scrape.Spool = (*Spool)(nil)

// New builds a Spool. clock may be nil.
func New(blobs BlobStore, prefix string, clock Clock) (*Spool, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &Spool{blobs: blobs, prefix: prefix, hasher: sha256.New(), clock: clock}, nil
}

type manifest struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error,omitempty"`
	Page      string    `json:"page,omitempty"`
	Records   string    `json:"records,omitempty"`
	SpooledAt time.Time `json:"spooled_at"`
}

// Save writes whatever outcome carries and returns the manifest URI. A page
// that can no longer produce HTML does not stop the records from being saved;
// its error is returned alongside the URI.
func (s *Spool) Save(ctx context.Context, runID string, outcome *scrape.Outcome) (string, error) {
	if outcome == nil {
		return "", fmt.Errorf("nothing to spool")
	}
	dir := path.Join(s.prefix, runID, s.hasher.Key(outcome.Target))
	m := manifest{
		RunID:     runID,
		Target:    outcome.Target,
		Kind:      string(outcome.Kind),
		SpooledAt: s.clock.Now(),
	}
	if outcome.Err != nil {
		m.Error = outcome.Err.Error()
	}

	var errs []error
	if outcome.Resource != nil {
		html, err := outcome.Resource.HTML(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("read page html: %w", err))
		} else if m.Page, err = s.put(ctx, path.Join(dir, "page.html"), "text/html; charset=utf-8", html); err != nil {
			errs = append(errs, err)
		}
	}
	if outcome.Records != nil {
		raw, err := json.Marshal(outcome.Records)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode records: %w", err))
		} else if m.Records, err = s.put(ctx, path.Join(dir, "records.json"), "application/json", raw); err != nil {
			errs = append(errs, err)
		}
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", errors.Join(append(errs, fmt.Errorf("encode manifest: %w", err))...)
	}
	uri, err := s.put(ctx, path.Join(dir, "outcome.json"), "application/json", raw)
	if err != nil {
		return "", errors.Join(append(errs, err)...)
	}
	return uri, errors.Join(errs...)
}

func (s *Spool) put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	uri, err := s.blobs.PutObject(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return uri, nil
}

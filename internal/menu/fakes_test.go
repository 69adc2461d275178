package menu

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type htmlPage struct {
	url       string
	html      string
	expanded  string
	expandErr error
	expands   int
}

func (p *htmlPage) URL() string { return p.url }

func (p *htmlPage) Expand(context.Context, string) (int, error) {
	if p.expandErr != nil {
		return 0, p.expandErr
	}
	if p.expanded == "" {
		return 0, nil
	}
	p.expands++
	p.html = p.expanded
	return 1, nil
}

func (p *htmlPage) HTML(context.Context) ([]byte, error) {
	if p.html == "" {
		return nil, errors.New("tab crashed")
	}
	return []byte(p.html), nil
}

func (p *htmlPage) Close() {}

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(raw)
}

// reveal strips the hidden marker the same way a "View all" click would.
func reveal(html string) string {
	return strings.ReplaceAll(html, ` data-scrape-hidden="true"`, "")
}

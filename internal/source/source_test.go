package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSources(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidSources(t *testing.T) {
	path := writeSources(t, `{
		"sources": [
			{"kind": "remote_pdf", "location": "https://example.com/report.pdf", "description": "annual report"},
			{"kind": "web_page", "location": "https://example.com/news",
			 "pagination": {"enabled": true, "next_link_selector": "a.next"},
			 "selectors": {"content": "#main"}},
			{"kind": "pdf_links_in_page", "location": "https://example.com/library"},
			{"kind": "local_pdf", "location": "/data/archive.pdf", "source_url": "https://example.com/archive.pdf"}
		]
	}`)

	sources, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sources, 4)

	assert.Equal(t, KindRemotePDF, sources[0].Kind)
	assert.Equal(t, "annual report", sources[0].Description)

	// Defaults fill in whatever the file omits.
	assert.Equal(t, "#main", sources[1].Selectors.Content)
	assert.Equal(t, `a[href$='.pdf']`, sources[1].Selectors.PDFLinks)
	assert.Equal(t, 100, sources[1].Pagination.MaxPages)
	assert.Equal(t, "body", sources[2].Selectors.Content)
	assert.Equal(t, "https://example.com/archive.pdf", sources[3].SourceURL)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing file kind", `{"sources": [{"location": "https://example.com/a.pdf"}]}`},
		{"unknown kind", `{"sources": [{"kind": "rss_feed", "location": "https://example.com"}]}`},
		{"missing location", `{"sources": [{"kind": "remote_pdf"}]}`},
		{"negative max_pages", `{"sources": [{"kind": "web_page", "location": "https://example.com", "pagination": {"enabled": true, "max_pages": -2}}]}`},
		{"empty list", `{"sources": []}`},
		{"invalid json", `{"sources": [`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSources(t, tc.body))
			var ce *ConfigError
			require.ErrorAs(t, err, &ce, "expected a config error")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
}

package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asaifulas/ragcrawler/internal/config"
	"github.com/asaifulas/ragcrawler/internal/source"
)

func testExtractor() *Extractor {
	cfg := &config.Config{
		RequestTimeout: 5 * time.Second,
		RequestDelay:   time.Millisecond,
		UserAgent:      "test-agent",
		MaxPagesPerPDF: 1000,
	}
	return NewExtractor(cfg, NewFetcher(cfg), nil)
}

func webSource(location string, p *source.Pagination) source.Descriptor {
	return source.Descriptor{
		Kind:       source.KindWebPage,
		Location:   location,
		Pagination: p,
		Selectors:  &source.Selectors{Content: "#content", PDFLinks: `a[href$='.pdf']`},
	}
}

func TestExtractWebPageSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><nav>ignore me</nav><div id="content">hello   crawler
		world</div></body></html>`)
	}))
	defer srv.Close()

	units, err := testExtractor().Extract(context.Background(), webSource(srv.URL, nil))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "hello crawler world", units[0].Text)
	assert.Equal(t, srv.URL, units[0].URL)
	assert.Nil(t, units[0].Page)
}

func TestExtractWebPagePaginationStopsOnCycle(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Page 3's next link loops back to page 1.
	page := func(n, next int) string {
		return fmt.Sprintf(`<html><body><div id="content">page %d text</div><a class="next" href="/page/%d">next</a></body></html>`, n, next)
	}
	mux.HandleFunc("/page/1", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, page(1, 2)) })
	mux.HandleFunc("/page/2", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, page(2, 3)) })
	mux.HandleFunc("/page/3", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, page(3, 1)) })

	src := webSource(srv.URL+"/page/1", &source.Pagination{
		Enabled:          true,
		MaxPages:         50,
		NextLinkSelector: "a.next",
	})
	units, err := testExtractor().Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "page 1 text", units[0].Text)
	assert.Equal(t, "page 3 text", units[2].Text)
}

func TestExtractWebPagePaginationRespectsMaxPages(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := 1
		fmt.Sscanf(r.URL.Query().Get("p"), "%d", &n)
		fmt.Fprintf(w, `<html><body><div id="content">page %d</div><a class="next" href="/?p=%d">next</a></body></html>`, n, n+1)
	})

	src := webSource(srv.URL+"/?p=1", &source.Pagination{
		Enabled:          true,
		MaxPages:         4,
		NextLinkSelector: "a.next",
	})
	units, err := testExtractor().Extract(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, units, 4)
}

func TestExtractWebPagePaginationStopsWhenNextLinkMissing(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/first", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content">first</div><a class="next" href="/last">next</a></body></html>`)
	})
	mux.HandleFunc("/last", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="content">last</div></body></html>`)
	})

	src := webSource(srv.URL+"/first", &source.Pagination{
		Enabled:          true,
		MaxPages:         50,
		NextLinkSelector: "a.next",
	})
	units, err := testExtractor().Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "last", units[1].Text)
}

func TestExtractWebPageFirstPageFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testExtractor().Extract(context.Background(), webSource(srv.URL, nil))
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, source.KindWebPage, ee.Kind)
}

func TestResolvePDFURLsDiscoversAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/docs/report.pdf">report</a>
			<a href="/docs/report.pdf">report again</a>
			<a href="https://cdn.example.com/other.pdf">other</a>
			<a href="/docs/page.html">not a pdf</a>
		</body></html>`)
	}))
	defer srv.Close()

	src := source.Descriptor{
		Kind:      source.KindPDFLinksInPage,
		Location:  srv.URL,
		Selectors: &source.Selectors{PDFLinks: `a[href$='.pdf']`},
	}
	urls, err := testExtractor().ResolvePDFURLs(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/docs/report.pdf",
		"https://cdn.example.com/other.pdf",
	}, urls)
}

func TestResolvePDFURLsRemotePDFIsItsOwnURL(t *testing.T) {
	src := source.Descriptor{Kind: source.KindRemotePDF, Location: "https://example.com/a.pdf"}
	urls, err := testExtractor().ResolvePDFURLs(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.pdf"}, urls)
}

func TestDownloadPDFRejectsHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>404 but with a 200</body></html>")
	}))
	defer srv.Close()

	cfg := &config.Config{RequestTimeout: 5 * time.Second, RequestDelay: time.Millisecond, UserAgent: "test-agent"}
	_, err := NewFetcher(cfg).DownloadPDF(context.Background(), srv.URL+"/fake.pdf", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF")
}

func TestDownloadPDFSendsReferer(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Write([]byte("%PDF-1.7 fake body"))
	}))
	defer srv.Close()

	cfg := &config.Config{RequestTimeout: 5 * time.Second, RequestDelay: time.Millisecond, UserAgent: "test-agent"}
	data, err := NewFetcher(cfg).DownloadPDF(context.Background(), srv.URL+"/doc.pdf", "https://listing.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://listing.example.com", gotReferer)
	assert.NotEmpty(t, data)
}

func TestExtractLocalTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("  local file body  \n"), 0o644))

	src := source.Descriptor{
		Kind:      source.KindLocalPDF,
		Location:  path,
		SourceURL: "https://example.com/published/notes",
	}
	units, err := testExtractor().Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "local file body", units[0].Text)
	assert.Equal(t, path, units[0].LocalSource)
	assert.Equal(t, "https://example.com/published/notes", units[0].URL)
	assert.Nil(t, units[0].Page)
}

func TestExtractLocalMissingFile(t *testing.T) {
	src := source.Descriptor{Kind: source.KindLocalPDF, Location: "/does/not/exist.pdf"}
	_, err := testExtractor().Extract(context.Background(), src)
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
}

func TestUnknownKindFailsClosed(t *testing.T) {
	_, err := testExtractor().Extract(context.Background(), source.Descriptor{Kind: "rss_feed", Location: "x"})
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
}

type stubRenderer struct {
	pdf        []byte
	fetchErr   error
	fetchedURL string
	gotReferer string
}

func (s *stubRenderer) Render(ctx context.Context, url string, opts RenderOptions) ([]string, error) {
	return nil, nil
}

func (s *stubRenderer) FetchPDF(ctx context.Context, url, referer string) ([]byte, error) {
	s.fetchedURL = url
	s.gotReferer = referer
	return s.pdf, s.fetchErr
}

func (s *stubRenderer) Close() error { return nil }

func TestDownloadPDFFallsBackToBrowser(t *testing.T) {
	// The host answers the direct GET with an HTML interstitial; only the
	// browser-context fetch yields the real file.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>please enable javascript</body></html>")
	}))
	defer srv.Close()

	cfg := &config.Config{
		RequestTimeout: 5 * time.Second,
		RequestDelay:   time.Millisecond,
		UserAgent:      "test-agent",
		MaxPagesPerPDF: 1000,
	}
	renderer := &stubRenderer{pdf: []byte("%PDF-1.7 browser body")}
	e := NewExtractor(cfg, NewFetcher(cfg), renderer)

	data, err := e.downloadPDF(context.Background(), srv.URL+"/doc.pdf", "https://listing.example.com")
	require.NoError(t, err)
	assert.Equal(t, renderer.pdf, data)
	assert.Equal(t, srv.URL+"/doc.pdf", renderer.fetchedURL)
	assert.Equal(t, "https://listing.example.com", renderer.gotReferer)
}

func TestDownloadPDFNoRendererKeepsDirectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a pdf</body></html>")
	}))
	defer srv.Close()

	e := testExtractor()
	_, err := e.downloadPDF(context.Background(), srv.URL+"/doc.pdf", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a PDF")
}

func TestDownloadPDFBrowserFailureReportsBoth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := &config.Config{
		RequestTimeout: 5 * time.Second,
		RequestDelay:   time.Millisecond,
		UserAgent:      "test-agent",
	}
	renderer := &stubRenderer{fetchErr: fmt.Errorf("browser fetch failed: status 403")}
	e := NewExtractor(cfg, NewFetcher(cfg), renderer)

	_, err := e.downloadPDF(context.Background(), srv.URL+"/doc.pdf", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "browser retry")
}

package source

import (
	"encoding/json"
	"fmt"
	"os"
)

// Source kinds accepted in sources.json.
const (
	KindRemotePDF      = "remote_pdf"
	KindLocalPDF       = "local_pdf"
	KindWebPage        = "web_page"
	KindPDFLinksInPage = "pdf_links_in_page"
)

// Pagination describes how to walk a multi-page listing.
type Pagination struct {
	Enabled            bool    `json:"enabled"`
	MaxPages           int     `json:"max_pages"`
	NextButtonSelector string  `json:"next_button_selector,omitempty"`
	NextLinkSelector   string  `json:"next_link_selector,omitempty"`
	PageNumberSelector string  `json:"page_number_selector,omitempty"`
	WaitTime           float64 `json:"wait_time,omitempty"` // seconds between pages
}

// Rendering describes whether a page needs JavaScript execution before its
// DOM is usable, and how long to wait for it.
type Rendering struct {
	UseJavaScript   bool    `json:"use_javascript"`
	WaitTime        float64 `json:"wait_time,omitempty"` // seconds
	WaitForSelector string  `json:"wait_for_selector,omitempty"`
}

// Selectors are the CSS selectors used to pull content and PDF links out of
// a page DOM.
type Selectors struct {
	Content  string `json:"content,omitempty"`
	PDFLinks string `json:"pdf_links,omitempty"`
}

// Descriptor is one configured input. Immutable once loaded; the crawl run
// only reads it.
type Descriptor struct {
	Kind        string      `json:"kind"`
	Location    string      `json:"location"`
	Description string      `json:"description,omitempty"`
	SourceURL   string      `json:"source_url,omitempty"` // overrides the recorded URL for local files
	Pagination  *Pagination `json:"pagination,omitempty"`
	Rendering   *Rendering  `json:"rendering,omitempty"`
	Selectors   *Selectors  `json:"selectors,omitempty"`
}

// ConfigError is fatal: a malformed source list aborts the run before any
// crawling starts.
type ConfigError struct {
	Op      string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("source.%s: %s", e.Op, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type sourcesFile struct {
	Sources []Descriptor `json:"sources"`
}

// Load reads and validates the declarative source list. Every record is
// checked at the parse boundary so missing-key failures never propagate into
// the pipeline.
func Load(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: "Load", Message: fmt.Sprintf("cannot read sources file %s", path), Err: err}
	}

	var f sourcesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Op: "Load", Message: "invalid JSON in sources file", Err: err}
	}
	if len(f.Sources) == 0 {
		return nil, &ConfigError{Op: "Load", Message: "sources file contains no sources"}
	}

	for i := range f.Sources {
		if err := validate(&f.Sources[i], i); err != nil {
			return nil, err
		}
		applyDefaults(&f.Sources[i])
	}
	return f.Sources, nil
}

func validate(d *Descriptor, idx int) error {
	switch d.Kind {
	case KindRemotePDF, KindLocalPDF, KindWebPage, KindPDFLinksInPage:
	case "":
		return &ConfigError{Op: "Validate", Message: fmt.Sprintf("source %d: missing kind", idx)}
	default:
		return &ConfigError{Op: "Validate", Message: fmt.Sprintf("source %d: unknown kind %q", idx, d.Kind)}
	}
	if d.Location == "" {
		return &ConfigError{Op: "Validate", Message: fmt.Sprintf("source %d (%s): missing location", idx, d.Kind)}
	}
	if d.Pagination != nil && d.Pagination.Enabled && d.Pagination.MaxPages < 0 {
		return &ConfigError{Op: "Validate", Message: fmt.Sprintf("source %d (%s): negative pagination.max_pages", idx, d.Kind)}
	}
	return nil
}

func applyDefaults(d *Descriptor) {
	if d.Selectors == nil {
		d.Selectors = &Selectors{}
	}
	if d.Selectors.Content == "" {
		d.Selectors.Content = "body"
	}
	if d.Selectors.PDFLinks == "" {
		d.Selectors.PDFLinks = `a[href$='.pdf']`
	}
	if d.Pagination != nil && d.Pagination.Enabled && d.Pagination.MaxPages == 0 {
		d.Pagination.MaxPages = 100
	}
	if d.Rendering != nil && d.Rendering.UseJavaScript && d.Rendering.WaitTime == 0 {
		d.Rendering.WaitTime = 5
	}
}

package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// RenderOptions controls one rendering session. NextButtonSelector plus
// MaxPages > 1 makes the renderer click through paginated content and return
// one HTML snapshot per page state.
type RenderOptions struct {
	WaitSeconds        float64
	WaitForSelector    string
	NextButtonSelector string
	MaxPages           int
}

// Renderer executes page JavaScript. Render returns the settled DOM;
// FetchPDF downloads a PDF from inside a page context, for hosts that refuse
// plain HTTP clients or hide the file behind a viewer page.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) ([]string, error)
	FetchPDF(ctx context.Context, url, referer string) ([]byte, error)
	Close() error
}

// ChromeRenderer drives a headless Chrome through chromedp. One browser
// process is shared across renders; each call gets its own tab.
type ChromeRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
}

func NewChromeRenderer(userAgent string) *ChromeRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeRenderer{allocCtx: allocCtx, cancel: cancel}
}

func (r *ChromeRenderer) Close() error {
	r.cancel()
	return nil
}

// newTab opens a tab tied to both the shared browser and the caller's ctx,
// so cancellation (SIGINT in the crawler) interrupts in-flight CDP work.
func (r *ChromeRenderer) newTab(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancelTab)
	return tabCtx, func() {
		stop()
		cancelTimeout()
		cancelTab()
	}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string, opts RenderOptions) ([]string, error) {
	tabCtx, cancel := r.newTab(ctx, 3*time.Minute)
	defer cancel()

	wait := time.Duration(opts.WaitSeconds * float64(time.Second))
	if wait <= 0 {
		wait = 5 * time.Second
	}

	settle := chromedp.Sleep(wait)
	if opts.WaitForSelector != "" {
		settle = chromedp.WaitVisible(opts.WaitForSelector, chromedp.ByQuery)
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		settle,
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return nil, err
	}
	pages := []string{html}

	maxPages := opts.MaxPages
	if opts.NextButtonSelector == "" || maxPages <= 1 {
		return pages, nil
	}

	for len(pages) < maxPages {
		var next string
		err := chromedp.Run(tabCtx,
			chromedp.Click(opts.NextButtonSelector, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.Sleep(wait),
			chromedp.OuterHTML("html", &next),
		)
		if err != nil {
			// No clickable next button left; pagination is exhausted.
			log.Printf("pagination of %s stopped after %d pages: %v", url, len(pages), err)
			break
		}
		if next == pages[len(pages)-1] {
			log.Printf("pagination of %s repeated a page state, stopping after %d pages", url, len(pages))
			break
		}
		pages = append(pages, next)
	}
	return pages, nil
}

// FetchPDF retrieves a PDF through the browser: navigate to the referring
// page (or the file's origin) so the tab holds the site's cookies, then fetch
// the file from inside the page context and ship it out base64-encoded.
func (r *ChromeRenderer) FetchPDF(ctx context.Context, pdfURL, referer string) ([]byte, error) {
	tabCtx, cancel := r.newTab(ctx, 3*time.Minute)
	defer cancel()

	origin := referer
	if origin == "" {
		u, err := url.Parse(pdfURL)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", pdfURL, err)
		}
		origin = u.Scheme + "://" + u.Host + "/"
	}

	script := fmt.Sprintf(`(async () => {
		const resp = await fetch(%q, {credentials: 'include'});
		if (!resp.ok) { throw new Error('status ' + resp.status); }
		const bytes = new Uint8Array(await resp.arrayBuffer());
		let bin = '';
		for (let i = 0; i < bytes.length; i++) { bin += String.fromCharCode(bytes[i]); }
		return btoa(bin);
	})()`, pdfURL)

	var encoded string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(origin),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(script, &encoded, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch %s: %w", pdfURL, err)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode browser fetch of %s: %w", pdfURL, err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("browser fetch of %s is not a PDF (missing %%PDF header)", pdfURL)
	}
	return data, nil
}

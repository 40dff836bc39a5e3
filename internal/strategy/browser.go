package strategy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/corpix/uarand"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// fetchWithBrowser loads the page in headless Chrome and captures the
// rendered DOM. This tier beats defenses that fingerprint header-only
// clients or require JavaScript to produce the document.
func (e *Executor) fetchWithBrowser(ctx context.Context, url string, sc Config) model.FetchResult {
	result := model.FetchResult{FinalURL: url}

	tCtx, cancelTCtx := context.WithTimeout(ctx, sc.Timeout)
	defer cancelTCtx()
	bCtx, cancel := chromedp.NewContext(tCtx)
	defer cancel()

	chromedp.ListenTarget(bCtx, func(event interface{}) {
		switch ev := event.(type) {
		case *network.EventResponseReceived:
			response := ev.Response
			if response.URL == url || response.URL == url+"/" || response.URL == result.FinalURL {
				result.StatusCode = int(response.Status)
			}
		case *network.EventRequestWillBeSent:
			if ev.RedirectResponse != nil {
				result.FinalURL = ev.Request.URL
				slog.Debug("browser redirected.", slog.String("url", ev.RedirectResponse.URL),
					slog.String("to", ev.Request.URL))
			}
		}
	})

	lang := e.cfg.DefaultLanguage
	if lang == "" {
		lang = "en-US,en;q=0.9"
	}
	var html string
	err := chromedp.Run(bCtx,
		chromedp.Tasks{
			network.Enable(),
			network.SetExtraHTTPHeaders(map[string]interface{}{
				"User-Agent":      uarand.GetRandom(),
				"Accept-Language": lang,
			}),
			enableLifeCycleEvents(),
			navigateAndWaitFor(url, "networkIdle"),
		},
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		if tCtx.Err() == context.DeadlineExceeded {
			result.Kind = model.FetchTimeout
		} else {
			result.Kind = model.FetchNetworkError
		}
		result.Reason = err.Error()
		return result
	}

	if res, terminal := classifyStatus(statusOrOK(result.StatusCode)); terminal {
		res.FinalURL = result.FinalURL
		return res
	}
	if looksBlocked(html) {
		result.Kind = model.FetchBlocked
		result.Reason = "bot challenge page detected"
		return result
	}

	result.Kind = model.FetchSuccess
	result.HTML = html
	return result
}

// statusOrOK treats a missing main-document status event as 200; chromedp
// only reports statuses for responses it attributes to the navigation.
func statusOrOK(code int) int {
	if code == 0 {
		return 200
	}
	return code
}

// looksBlocked spots challenge interstitials served with a 200.
func looksBlocked(html string) bool {
	if len(html) > 4096 {
		html = html[:4096]
	}
	lower := strings.ToLower(html)
	for _, marker := range []string{
		"cf-challenge", "just a moment...", "attention required!",
		"are you a robot", "access denied", "captcha-delivery",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		return waitFor(ctx, eventName)
	}
}

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if e.Name == eventName {
				cancel()
				close(ch)
			}
		}
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

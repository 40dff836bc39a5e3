package strategy

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/corpix/uarand"
	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
)

// archiveFetcher is the last-resort tier pulling pages from a web archive
// instead of the live site.
type archiveFetcher interface {
	Fetch(ctx context.Context, url string) model.FetchResult
}

// Executor drives single fetch attempts and the sequential ladder.
type Executor struct {
	cfg       *config.StrategyConfig
	transport *http.Transport
	archive   archiveFetcher

	// overridable in tests
	browserFetch func(ctx context.Context, url string, sc Config) model.FetchResult
	sleep        func(d time.Duration)
}

func NewExecutor(cfg *config.StrategyConfig, transport *http.Transport, archive archiveFetcher) *Executor {
	e := &Executor{
		cfg:       cfg,
		transport: transport,
		archive:   archive,
		sleep:     time.Sleep,
	}
	e.browserFetch = e.fetchWithBrowser
	return e
}

// Execute applies one strategy to the URL: randomized pre-request delay, the
// strategy's headers/timeout/redirect policy, and classification of the raw
// transport outcome.
func (e *Executor) Execute(ctx context.Context, url string, sc Config) model.FetchResult {
	e.delay(sc)

	if sc.UseArchive {
		if e.archive == nil {
			return model.FetchResult{Kind: model.FetchNetworkError, Reason: "archive tier disabled", Mechanism: sc.Name}
		}
		res := e.archive.Fetch(ctx, url)
		res.Mechanism = sc.Name
		return res
	}
	if sc.UseBrowser {
		res := e.browserFetch(ctx, url, sc)
		res.Mechanism = sc.Name
		return res
	}
	res := e.fetchWithClient(ctx, url, sc)
	res.Mechanism = sc.Name
	return res
}

// ExecuteSequential walks the catalog in order, returning the first success.
// A 404 aborts immediately: no header set will make the page exist. Any other
// failure advances to the next strategy; the last failure is returned when
// the ladder is exhausted.
func (e *Executor) ExecuteSequential(ctx context.Context, url string, catalog []Config) model.FetchResult {
	last := model.FetchResult{Kind: model.FetchNetworkError, Reason: "empty strategy catalog"}
	for _, sc := range catalog {
		res := e.Execute(ctx, url, sc)
		switch res.Kind {
		case model.FetchSuccess:
			slog.Debug("fetch succeeded.", slog.String("url", url), slog.String("strategy", sc.Name))
			return res
		case model.FetchNotFound:
			slog.Debug("page not found, aborting ladder.", slog.String("url", url))
			return res
		default:
			slog.Debug("strategy failed, escalating.", slog.String("url", url),
				slog.String("strategy", sc.Name), slog.String("kind", res.Kind.String()),
				slog.String("reason", res.Reason))
			last = res
		}
		if ctx.Err() != nil {
			last.Reason = ctx.Err().Error()
			return last
		}
	}
	return last
}

func (e *Executor) fetchWithClient(ctx context.Context, url string, sc Config) model.FetchResult {
	client := &http.Client{
		Transport: e.transport,
		Timeout:   sc.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= sc.MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.FetchResult{Kind: model.FetchNetworkError, Reason: err.Error()}
	}
	for k, v := range sc.Headers {
		req.Header.Set(k, v)
	}
	if sc.RotateUA {
		req.Header.Set("User-Agent", uarand.GetRandom())
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if res, terminal := classifyStatus(resp.StatusCode); terminal {
		return res
	}

	body, err := readBody(resp, e.cfg.MaxBodyBytes)
	if err != nil {
		return model.FetchResult{Kind: model.FetchNetworkError, StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return model.FetchResult{
		Kind:       model.FetchSuccess,
		StatusCode: resp.StatusCode,
		HTML:       string(body),
		FinalURL:   finalURL,
	}
}

// classifyStatus maps an HTTP status to a terminal FetchResult. The second
// return is false only for 2xx, where the body still has to be read.
func classifyStatus(code int) (model.FetchResult, bool) {
	switch {
	case code/100 == 2:
		return model.FetchResult{}, false
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return model.FetchResult{Kind: model.FetchBlocked, StatusCode: code,
			Reason: http.StatusText(code)}, true
	case code == http.StatusNotFound || code == http.StatusGone:
		return model.FetchResult{Kind: model.FetchNotFound, StatusCode: code}, true
	default:
		return model.FetchResult{Kind: model.FetchNetworkError, StatusCode: code,
			Reason: "unexpected status: " + http.StatusText(code)}, true
	}
}

func classifyTransportError(err error) model.FetchResult {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return model.FetchResult{Kind: model.FetchTimeout, Reason: err.Error()}
	}
	return model.FetchResult{Kind: model.FetchNetworkError, Reason: err.Error()}
}

// readBody decodes the response body according to Content-Encoding and caps
// its size. Brotli shows up on stealth-tier responses that advertise br.
func readBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closers []io.Closer

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		return nil, errors.New("response body exceeds size limit")
	}
	return body, nil
}

func (e *Executor) delay(sc Config) {
	if e.cfg.DisableDelays || sc.DelayMax <= 0 {
		return
	}
	d := sc.DelayMin
	if spread := sc.DelayMax - sc.DelayMin; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	e.sleep(d)
}

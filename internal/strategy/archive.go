package strategy

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/karust/gogetcrawl/common"
	"github.com/karust/gogetcrawl/commoncrawl"
	"github.com/mealdex/recipe-crawler/config"
	"github.com/mealdex/recipe-crawler/internal/model"
	"github.com/patrickmn/go-cache"
)

const indexListUrl = "https://index.commoncrawl.org/collinfo.json"

type archiveIndex struct {
	Id       string `json:"id"`
	Name     string `json:"name"`
	Timegate string `json:"timegate"`
	CdxAPI   string `json:"cdx-api"`
}

// ArchiveClient fetches the most recent CommonCrawl capture of a URL. Sites
// that block every live strategy often still appear in the public archive.
type ArchiveClient struct {
	crawler    *commoncrawl.CommonCrawl
	cfg        *config.StrategyConfig
	localCache *cache.Cache
}

// NewArchiveClient has small request limitations on the CommonCrawl side;
// the ladder only reaches it after every live tier failed.
func NewArchiveClient(cfg *config.StrategyConfig) *ArchiveClient {
	c, err := commoncrawl.New(cfg.ArchiveTimeout, cfg.ArchiveRetries)
	if err != nil {
		slog.Error("failed to create common crawl client", slog.String("err", err.Error()))
	}
	return &ArchiveClient{
		crawler:    c,
		cfg:        cfg,
		localCache: cache.New(72*time.Hour, 72*time.Hour), // CommonCrawl indexes update every month
	}
}

func (a *ArchiveClient) Fetch(ctx context.Context, url string) model.FetchResult {
	slog.Info("fetching from web archive.", slog.String("url", url))
	if a.crawler == nil { // due to request limitations, the client may not initialize at startup
		var err error
		a.crawler, err = commoncrawl.New(a.cfg.ArchiveTimeout, a.cfg.ArchiveRetries)
		if err != nil {
			return model.FetchResult{Kind: model.FetchNetworkError,
				Reason: "connection to common crawl failed: " + err.Error()}
		}
	}

	indexList, err := a.getIndexes()
	if err != nil {
		return model.FetchResult{Kind: model.FetchNetworkError, Reason: err.Error()}
	}
	requestCfg := common.RequestConfig{
		URL:     url,
		Filters: []string{"statuscode:200", "mimetype:text/html"},
	}

	limit := a.cfg.ArchiveIndexes
	if limit > len(indexList) {
		limit = len(indexList)
	}
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return model.FetchResult{Kind: model.FetchTimeout, Reason: ctx.Err().Error()}
		}
		p, _ := a.crawler.GetPagesIndex(requestCfg, indexList[i].Id)
		if len(p) == 0 {
			slog.Debug("no captures in archive index.", slog.String("url", url),
				slog.String("index", indexList[i].Id))
			continue
		}
		resp, err := a.crawler.GetFile(p[len(p)-1]) // last one is the most recent
		if err != nil {
			slog.Error("failed to get archive file", slog.String("err", err.Error()))
			break
		}
		body := string(resp)
		if html := extractHtml(&body); html != "" {
			return model.FetchResult{Kind: model.FetchSuccess, StatusCode: 200,
				HTML: html, FinalURL: url}
		}
	}

	return model.FetchResult{Kind: model.FetchNetworkError,
		Reason: "no captures found in web archive"}
}

func (a *ArchiveClient) getIndexes() ([]archiveIndex, error) {
	if i, ok := a.localCache.Get("indexes"); ok {
		return i.([]archiveIndex), nil
	}

	response, err := common.Get(indexListUrl, a.crawler.MaxTimeout, a.crawler.MaxRetries)
	if err != nil {
		return nil, err
	}

	var indexes []archiveIndex
	err = jsoniter.Unmarshal(response, &indexes)
	if err != nil {
		return indexes, err
	}
	a.localCache.Set("indexes", indexes, cache.DefaultExpiration)

	return indexes, nil
}

func extractHtml(body *string) string {
	re := regexp.MustCompile(`(?si)<!doctype html>.*?</html>`)
	match := re.FindStringSubmatch(*body)

	if len(match) > 0 {
		return match[0]
	}
	return ""
}

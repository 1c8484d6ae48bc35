// Package scraper adapts the public company-information site. Pages
// embed their data as JSON inside a script tag, so extraction is
// structural on the decoded payload rather than DOM walking.
package scraper

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/gateway"
	"github.com/orgnr/bolagsdata/internal/providers"
)

// searchCacheTTL keeps repeated identical searches off the upstream for
// a while. Company pages are never cached here; their freshness is the
// store's call.
const searchCacheTTL = 10 * time.Minute

// Client scrapes company pages and the site search endpoint.
type Client struct {
	gw      *gateway.Gateway
	baseURL string
}

// New builds a scraper on top of the shared gateway.
func New(gw *gateway.Gateway, baseURL string) *Client {
	return &Client{gw: gw, baseURL: baseURL}
}

// Name implements providers.Provider.
func (c *Client) Name() string { return models.SourceScraper }

// Fetch loads the summary page and the group page in parallel and
// assembles a partial record from both. The group page is best effort;
// a company without one still yields a record.
func (c *Client) Fetch(ctx context.Context, orgnr string) (*providers.Record, error) {
	norm := models.NormalizeOrgnr(orgnr)

	var summary, group *pageProps
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.page(gctx, "/"+norm)
		if err != nil {
			if gateway.IsNotFound(err) {
				return nil
			}
			return err
		}
		summary = p
		return nil
	})
	g.Go(func() error {
		p, err := c.page(gctx, "/"+norm+"/organisation")
		if err != nil {
			if !gateway.IsNotFound(err) {
				log.Warn().Err(err).Str("orgnr", norm).Msg("Group page fetch failed")
			}
			return nil
		}
		group = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if summary == nil || summary.Company == nil {
		return nil, nil
	}

	var org *organisationPayload
	if group != nil {
		org = group.Organisation
	}
	return buildRecord(norm, summary.Company, org), nil
}

// SearchResult is one entry from the site search.
type SearchResult struct {
	Orgnr       string `json:"orgnr"`
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	CompanyType string `json:"company_type,omitempty"`
}

// Search queries the site search endpoint, returning at most limit
// summary entries. Results are served through the gateway cache.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	p, err := c.fetchPage(ctx, "/sok?q="+url.QueryEscape(query), searchCacheTTL)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if p.SearchResult == nil {
		return nil, nil
	}

	hits := p.SearchResult.Hits
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{
			Orgnr:       models.NormalizeOrgnr(h.Orgnr),
			Name:        h.Name,
			Location:    h.Location,
			CompanyType: h.CompanyType,
		})
	}
	return out, nil
}

func (c *Client) page(ctx context.Context, path string) (*pageProps, error) {
	return c.fetchPage(ctx, path, 0)
}

func (c *Client) fetchPage(ctx context.Context, path string, cacheTTL time.Duration) (*pageProps, error) {
	resp, err := c.gw.Do(ctx, gateway.Request{
		Source: models.SourceScraper,
		Method: http.MethodGet,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Accept": "text/html",
		},
		CacheTTL: cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return decodePayload(resp.Body)
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

package provider

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/streamweave/streamweave/internal/source/types"
)

var yearDigitsRegex = regexp.MustCompile(`(19|20)\d{2}`)

// scrapeClient searches providers that only expose an HTML search page,
// using the CSS selectors from the provider definition.
type scrapeClient struct {
	def  Definition
	http *http.Client
}

func (c *scrapeClient) Definition() Definition { return c.def }

func (c *scrapeClient) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.def.searchURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; streamweave)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.def.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: unexpected status %d", c.def.ID, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	sel := c.def.Selectors
	var candidates []types.Candidate
	doc.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(sel.Title).First().Text())
		if title == "" {
			return
		}

		externalID := ""
		if sel.Link != "" {
			externalID, _ = item.Find(sel.Link).First().Attr("href")
		}

		year := ""
		if sel.Year != "" {
			year = yearDigitsRegex.FindString(item.Find(sel.Year).Text())
		}

		var episodes []string
		if sel.Episodes != "" {
			item.Find(sel.Episodes).Each(func(_ int, ep *goquery.Selection) {
				if href, ok := ep.Attr("href"); ok && href != "" {
					episodes = append(episodes, href)
				}
			})
		}

		candidates = append(candidates, types.Candidate{
			ProviderID:   c.def.ID,
			ProviderName: c.def.DisplayName(),
			ExternalID:   externalID,
			Title:        title,
			Year:         year,
			Episodes:     episodes,
		})
	})

	return candidates, nil
}

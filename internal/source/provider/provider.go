// Package provider implements source provider clients: JSON search APIs
// and HTML scrape targets, both described by YAML definition files.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamweave/streamweave/internal/source/types"
)

// Kind selects the client implementation for a provider.
type Kind string

const (
	KindAPI    Kind = "api"
	KindScrape Kind = "scrape"
)

// Definition describes one source provider.
type Definition struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`
	// SearchURL is a template; {query} is replaced with the
	// URL-escaped search term.
	SearchURL string `yaml:"search_url"`
	// Timeout overrides the global search timeout, in seconds.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Selectors configure scrape providers.
	Selectors ScrapeSelectors `yaml:"selectors"`
	Disabled  bool            `yaml:"disabled"`
}

// ScrapeSelectors holds the CSS selectors for a scrape provider.
type ScrapeSelectors struct {
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Year     string `yaml:"year"`
	Link     string `yaml:"link"`
	Episodes string `yaml:"episodes"`
}

// Validate checks a definition for the fields every kind requires.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("provider definition missing id")
	}
	if d.SearchURL == "" {
		return fmt.Errorf("provider %q missing search_url", d.ID)
	}
	switch d.Kind {
	case KindAPI, KindScrape:
	case "":
		return fmt.Errorf("provider %q missing kind", d.ID)
	default:
		return fmt.Errorf("provider %q has unknown kind %q", d.ID, d.Kind)
	}
	if d.Kind == KindScrape && d.Selectors.Item == "" {
		return fmt.Errorf("scrape provider %q missing selectors.item", d.ID)
	}
	return nil
}

// DisplayName returns the human-readable provider name.
func (d Definition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// searchURL renders the search URL template for a query.
func (d Definition) searchURL(query string) string {
	return strings.ReplaceAll(d.SearchURL, "{query}", url.QueryEscape(query))
}

// Client searches one provider for candidates.
type Client interface {
	Definition() Definition
	Search(ctx context.Context, query string) ([]types.Candidate, error)
}

// NewClient builds the client for a definition. The definition must have
// passed Validate.
func NewClient(def Definition, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	switch def.Kind {
	case KindScrape:
		return &scrapeClient{def: def, http: httpClient}
	default:
		return &apiClient{def: def, http: httpClient}
	}
}

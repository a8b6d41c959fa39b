// Package quotes fetches live prices for watched instruments.
package quotes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stockwatch/internal/logging"
)

// Quote is a price snapshot for one instrument.
type Quote struct {
	Price         decimal.Decimal
	ChangePercent decimal.Decimal
	Name          string
}

// Provider returns quotes by instrument code.
type Provider interface {
	Quote(ctx context.Context, code string) (Quote, error)
}

// Selectors locate quote fields on a quote page.
type Selectors struct {
	Price         string
	ChangePercent string
	Name          string
}

// ScraperConfig holds quote page scraping configuration.
type ScraperConfig struct {
	// URLTemplate is the quote page URL with a {symbol} placeholder.
	URLTemplate string
	Selectors   Selectors
	Timeout     time.Duration
	UserAgent   string
}

// DefaultScraperConfig returns a configuration for Yahoo Finance quote pages.
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		URLTemplate: "https://finance.yahoo.com/quote/{symbol}",
		Selectors: Selectors{
			Price:         `fin-streamer[data-field="regularMarketPrice"]`,
			ChangePercent: `fin-streamer[data-field="regularMarketChangePercent"]`,
			Name:          "h1",
		},
		Timeout:   10 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Scraper reads quotes from HTML quote pages.
type Scraper struct {
	cfg    ScraperConfig
	logger zerolog.Logger
}

var _ Provider = (*Scraper)(nil)

// NewScraper creates a quote page scraper.
func NewScraper(cfg ScraperConfig, logger zerolog.Logger) *Scraper {
	defaults := DefaultScraperConfig()
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = defaults.URLTemplate
	}
	if cfg.Selectors.Price == "" {
		cfg.Selectors.Price = defaults.Selectors.Price
	}
	if cfg.Selectors.ChangePercent == "" {
		cfg.Selectors.ChangePercent = defaults.Selectors.ChangePercent
	}
	if cfg.Selectors.Name == "" {
		cfg.Selectors.Name = defaults.Selectors.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	return &Scraper{cfg: cfg, logger: logging.WithComponent(logger, "quotes")}
}

// Quote scrapes the quote page of code.
func (s *Scraper) Quote(ctx context.Context, code string) (Quote, error) {
	pageURL := strings.ReplaceAll(s.cfg.URLTemplate, "{symbol}", YahooSymbol(code))

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.cfg.Timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", s.cfg.UserAgent)
	})

	var (
		q        Quote
		priceErr error
		found    bool
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		found = true
		price, ok := parseNumber(pick(e.DOM, s.cfg.Selectors.Price))
		if !ok {
			priceErr = fmt.Errorf("no price found for %s at %s", code, pageURL)
			return
		}
		q.Price = price
		if change, ok := parseNumber(pick(e.DOM, s.cfg.Selectors.ChangePercent)); ok {
			q.ChangePercent = change
		}
		q.Name = cleanName(e.DOM.Find(s.cfg.Selectors.Name).First().Text())
	})

	start := time.Now()
	err := c.Visit(pageURL)
	logging.LogAPICall(s.logger, "GET", pageURL, time.Since(start), err)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch quote page for %s: %w", code, err)
	}
	if !found {
		return Quote{}, fmt.Errorf("quote page for %s returned no html", code)
	}
	if priceErr != nil {
		return Quote{}, priceErr
	}
	return q, nil
}

// pick returns the value of the first element matching selector, preferring
// its data-value attribute over its text.
func pick(doc *goquery.Selection, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr("data-value"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return sel.Text()
}

// parseNumber accepts quote page number text like "1,234.50", "+1.25%" or "(-0.37%)".
func parseNumber(text string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, "()")
	s = strings.NewReplacer(",", "", "%", "", "+", "", "−", "-").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// cleanName strips a trailing "(TICKER)" from a page heading.
func cleanName(text string) string {
	name := strings.TrimSpace(text)
	if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

// YahooSymbol maps an instrument code to its Yahoo Finance ticker
// ("sh.600000" -> "600000.SS", "BRK.B" -> "BRK-B").
func YahooSymbol(code string) string {
	prefix, rest, ok := strings.Cut(code, ".")
	if ok {
		switch strings.ToLower(prefix) {
		case "sh":
			return rest + ".SS"
		case "sz":
			return rest + ".SZ"
		case "bj":
			return rest + ".BJ"
		}
		return prefix + "-" + rest
	}
	return code
}

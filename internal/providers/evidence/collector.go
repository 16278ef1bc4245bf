package evidence

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/resilience"
	"github.com/techscaniq/diligence/internal/shared/id"
)

const (
	defaultMaxPages   = 3
	maxItemsPerPage   = 8
	summaryMaxLength  = 280
	collectionTimeout = 30 * time.Second
)

// followKeywords marks same-host links worth a secondary fetch
var followKeywords = []string{"about", "product", "pricing", "team", "customers", "platform"}

// WebCollector gathers evidence from a company's public website
type WebCollector struct {
	client    *resty.Client
	sanitizer *bluemonday.Policy
	log       *zap.Logger
}

// NewWebCollector creates a website evidence collector
func NewWebCollector(log *zap.Logger) *WebCollector {
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(collectionTimeout).
		SetHeader("User-Agent", "diligence-pipeline/1.0").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &WebCollector{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log,
	}
}

// Collect fetches the company's website (and a bounded set of linked pages)
// and extracts typed evidence items with per-item confidence.
func (c *WebCollector) Collect(ctx context.Context, company, website string, criteria Criteria) (*Collection, error) {
	maxPages := criteria.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	doc, err := c.fetch(ctx, website)
	if err != nil {
		return nil, err
	}

	collection := &Collection{
		CollectionID: id.NewCollectionID().String(),
		Items:        c.extract(doc, website),
	}

	for _, link := range c.followLinks(doc, website, maxPages-1) {
		sub, err := c.fetch(ctx, link)
		if err != nil {
			// Secondary pages are best-effort; the homepage already yielded items
			c.log.Debug("secondary page fetch failed", zap.String("url", link), zap.Error(err))
			continue
		}
		collection.Items = append(collection.Items, c.extract(sub, link)...)
	}

	c.log.Info("evidence collected",
		zap.String("company", company),
		zap.String("collection_id", collection.CollectionID),
		zap.Int("items", len(collection.Items)),
	)
	return collection, nil
}

// fetch retrieves and parses one page
func (c *WebCollector) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := c.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &resilience.ProviderError{Provider: "evidence-web", Kind: resilience.KindNetwork, Err: err}
	}
	if resp.IsError() {
		kind := resilience.KindNetwork
		if resp.StatusCode() == 429 {
			kind = resilience.KindRateLimit
		}
		return nil, &resilience.ProviderError{
			Provider: "evidence-web",
			Kind:     kind,
			Err:      errors.New(resp.Status()),
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, &resilience.ProviderError{Provider: "evidence-web", Kind: resilience.KindValidation, Err: err}
	}
	return doc, nil
}

// extract pulls typed evidence items out of a parsed page
func (c *WebCollector) extract(doc *goquery.Document, source string) []Item {
	var items []Item

	if title := c.clean(doc.Find("title").First().Text()); title != "" {
		items = append(items, c.item(TypeIdentity, title, 0.9, source))
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if cleaned := c.clean(desc); cleaned != "" {
			items = append(items, c.item(TypePositioning, cleaned, 0.8, source))
		}
	}
	if generator, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
		if cleaned := c.clean(generator); cleaned != "" {
			items = append(items, c.item(TypeTechnology, cleaned, 0.6, source))
		}
	}

	doc.Find("h1, h2").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(items) >= maxItemsPerPage {
			return false
		}
		if heading := c.clean(s.Text()); heading != "" {
			items = append(items, c.item(TypeOffering, heading, 0.6, source))
		}
		return true
	})

	doc.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(items) >= maxItemsPerPage {
			return false
		}
		text := c.clean(s.Text())
		// Short paragraphs are navigation chrome, not evidence
		if len(text) >= 80 {
			items = append(items, c.item(TypeContent, text, 0.4, source))
		}
		return true
	})

	return items
}

// followLinks selects up to limit same-host links that look informative
func (c *WebCollector) followLinks(doc *goquery.Document, base string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(links) >= limit {
			return false
		}
		href, _ := s.Attr("href")
		resolved, err := baseURL.Parse(href)
		if err != nil || resolved.Host != baseURL.Host {
			return true
		}
		target := resolved.String()
		if seen[target] || target == base {
			return true
		}
		path := strings.ToLower(resolved.Path)
		for _, keyword := range followKeywords {
			if strings.Contains(path, keyword) {
				seen[target] = true
				links = append(links, target)
				break
			}
		}
		return true
	})
	return links
}

func (c *WebCollector) item(itemType, summary string, confidence float64, source string) Item {
	summary = truncate(summary, summaryMaxLength)
	return Item{
		ID:         id.NewEvidenceID().String(),
		Type:       itemType,
		Summary:    summary,
		Confidence: confidence,
		Source:     source,
	}
}

// truncate caps s at max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// clean sanitizes extracted text and normalizes whitespace
func (c *WebCollector) clean(text string) string {
	sanitized := c.sanitizer.Sanitize(text)
	return strings.Join(strings.Fields(sanitized), " ")
}

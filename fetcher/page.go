package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"policylens/types"
)

// fetchHTMLIndex scrapes an HTML listing page for article links, then
// resolves each link into a raw document. Link failures emit per-article
// failure signals; only an unreachable index page fails the whole target.
func (f *Fetcher) fetchHTMLIndex(ctx context.Context, target types.Target, out chan<- Result) ([]*types.RawDocument, error) {
	body, err := f.get(ctx, target.Name, target.URL)
	if err != nil {
		return nil, err
	}

	links, err := discoverLinks(body, target.URL, target.MaxItems)
	if err != nil {
		return nil, &PermanentError{URL: target.URL, Err: err}
	}
	f.log.Debug("discovered article links", "target", target.Name, "count", len(links))

	docs := make([]*types.RawDocument, 0, len(links))
	for _, link := range links {
		if ctx.Err() != nil {
			return docs, nil
		}

		doc, err := f.fetchArticle(ctx, target, link)
		if err != nil {
			f.emitFailure(ctx, out, target, link, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *Fetcher) fetchArticle(ctx context.Context, target types.Target, link string) (*types.RawDocument, error) {
	page, err := f.get(ctx, target.Name, link)
	if err != nil {
		return nil, err
	}

	doc := &types.RawDocument{
		SourceName:   target.Name,
		Country:      target.Country,
		URL:          link,
		CanonicalURL: types.CanonicalURL(link),
		FetchedAt:    time.Now().UTC(),
	}
	if err := f.extractBody(doc, page, link); err != nil {
		return nil, &PermanentError{URL: link, Err: err}
	}

	// Listing pages carry no publish date; look for common meta tags.
	if published, raw := publishedFromMeta(page); !published.IsZero() {
		doc.PublishedAt = published
	} else {
		doc.PublishedRaw = raw
	}

	doc.ContentHash = types.HashContent(doc.BodyText)
	return doc, nil
}

// discoverLinks pulls same-host anchor targets from a listing page, in
// document order, deduplicated, up to limit.
func discoverLinks(page []byte, baseURL string, limit int) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	q, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	q.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		resolved := resolveLink(base, href)
		if resolved == "" || seen[resolved] {
			return true
		}
		seen[resolved] = true
		links = append(links, resolved)
		return limit <= 0 || len(links) < limit
	})
	return links, nil
}

// resolveLink turns an anchor href into an absolute same-host article URL,
// or "" when the link is navigation noise (off-host, anchors, query-only).
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil {
		return ""
	}
	if u.Host != base.Host {
		return ""
	}
	// Skip the listing page itself and bare section roots.
	if strings.TrimRight(u.Path, "/") == strings.TrimRight(base.Path, "/") {
		return ""
	}
	if u.Path == "" || u.Path == "/" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// publishedFromMeta scans for article:published_time style meta tags and
// returns the parsed time, or the raw string for the pipeline to parse.
func publishedFromMeta(page []byte) (time.Time, string) {
	q, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return time.Time{}, ""
	}

	selectors := []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="publish-date"]`,
		`meta[itemprop="datePublished"]`,
	}
	for _, sel := range selectors {
		content, ok := q.Find(sel).First().Attr("content")
		if !ok || content == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, content); err == nil {
			return ts.UTC(), content
		}
		return time.Time{}, content
	}
	return time.Time{}, ""
}

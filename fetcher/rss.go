package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"policylens/types"
)

// fetchRSS parses a feed and resolves each entry into a full raw document.
// Entries whose article body cannot be fetched emit their own failure signal
// without stopping the rest of the feed.
func (f *Fetcher) fetchRSS(ctx context.Context, target types.Target, out chan<- Result) ([]*types.RawDocument, error) {
	body, err := f.get(ctx, target.Name, target.URL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &PermanentError{URL: target.URL, Err: fmt.Errorf("parse feed: %w", err)}
	}

	limit := len(feed.Items)
	if target.MaxItems > 0 && target.MaxItems < limit {
		limit = target.MaxItems
	}

	docs := make([]*types.RawDocument, 0, limit)
	for _, item := range feed.Items[:limit] {
		if ctx.Err() != nil {
			return docs, nil
		}
		if item.Link == "" {
			continue
		}

		doc, err := f.resolveEntry(ctx, target, item)
		if err != nil {
			f.emitFailure(ctx, out, target, item.Link, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// resolveEntry fetches the linked article and merges feed metadata with the
// extracted page content.
func (f *Fetcher) resolveEntry(ctx context.Context, target types.Target, item *gofeed.Item) (*types.RawDocument, error) {
	page, err := f.get(ctx, target.Name, item.Link)
	if err != nil {
		return nil, err
	}

	doc := &types.RawDocument{
		SourceName:   target.Name,
		Country:      target.Country,
		URL:          item.Link,
		CanonicalURL: types.CanonicalURL(item.Link),
		Title:        strings.TrimSpace(item.Title),
		Summary:      item.Description,
		Categories:   append([]string(nil), item.Categories...),
		FetchedAt:    time.Now().UTC(),
	}

	if item.PublishedParsed != nil {
		doc.PublishedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		doc.PublishedAt = item.UpdatedParsed.UTC()
	} else {
		doc.PublishedRaw = item.Published
	}
	if item.Author != nil {
		doc.Author = item.Author.Name
	}

	if err := f.extractBody(doc, page, item.Link); err != nil {
		// A feed entry still carries a usable summary; keep it as the body
		// and let the pipeline decide whether it passes validation.
		f.log.Debug("readability extraction failed, falling back to summary",
			"url", item.Link, "error", err)
		doc.Body = item.Content
		doc.BodyText = item.Description
	}

	doc.ContentHash = types.HashContent(doc.BodyText)
	return doc, nil
}

// extractBody runs readability over fetched page bytes and fills the
// document's content fields.
func (f *Fetcher) extractBody(doc *types.RawDocument, page []byte, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return err
	}
	article, err := readability.FromReader(strings.NewReader(string(page)), u)
	if err != nil {
		return fmt.Errorf("readability: %w", err)
	}

	doc.Body = article.Content
	doc.BodyText = article.TextContent
	if doc.Summary == "" {
		doc.Summary = article.Excerpt
	}
	if doc.Author == "" {
		doc.Author = article.Byline
	}
	if doc.Title == "" {
		doc.Title = article.Title
	}
	return nil
}

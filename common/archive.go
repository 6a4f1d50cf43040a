package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"policylens/logger"
	"policylens/types"
)

// DocumentArchive writes fetched raw documents to S3 before they enter the
// pipeline, so rejected or reprocessed content can be replayed from the
// original payload.
type DocumentArchive struct {
	s3     *S3
	bucket string
	prefix string
	log    *logger.Logger
}

// NewDocumentArchive creates an archive rooted at bucket/prefix.
func NewDocumentArchive(s3 *S3, bucket, prefix string, log *logger.Logger) *DocumentArchive {
	return &DocumentArchive{
		s3:     s3,
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log,
	}
}

// ArchiveDocument uploads the document as JSON. The key is derived from the
// canonical URL and the content hash, so re-fetching unchanged content is a
// no-op and changed content lands beside the earlier capture.
func (a *DocumentArchive) ArchiveDocument(ctx context.Context, doc *types.RawDocument) error {
	key := a.key(doc)

	exists, err := a.s3.Exists(ctx, a.bucket, key)
	if err != nil {
		return fmt.Errorf("head %s: %w", key, err)
	}
	if exists {
		a.log.Debug("raw document already archived", "key", key)
		return nil
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal raw document: %w", err)
	}

	if err := a.s3.Put(ctx, a.bucket, key, bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	a.log.Debug("archived raw document", "key", key, "url", doc.CanonicalURL)
	return nil
}

func (a *DocumentArchive) key(doc *types.RawDocument) string {
	hash := doc.ContentHash
	if len(hash) > 16 {
		hash = hash[:16]
	}
	key := fmt.Sprintf("raw/%s/%s.json", types.ShortID(doc.CanonicalURL), hash)
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

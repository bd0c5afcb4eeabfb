package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/omopexport/internal/platform/blobstore"
	"github.com/ehr/omopexport/internal/platform/omop"
)

const (
	// DefaultURLTTL is how long a published file's link stays valid.
	DefaultURLTTL = 48 * time.Hour

	DefaultArtifactPrefix = "omop"

	tsvContentType = "text/tab-separated-values"
)

// Publisher uploads serialised tables to the artifact store and returns
// time-limited download links.
type Publisher struct {
	store  blobstore.Store
	prefix string
	ttl    time.Duration
}

func NewPublisher(store blobstore.Store, prefix string, ttl time.Duration) *Publisher {
	if prefix == "" {
		prefix = DefaultArtifactPrefix
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Publisher{store: store, prefix: prefix, ttl: ttl}
}

// Key returns the object key for a run's table file.
func (p *Publisher) Key(runID uuid.UUID, table omop.Table) string {
	return path.Join(p.prefix, runID.String(), table.FileName())
}

func (p *Publisher) runPrefix(runID uuid.UUID) string {
	return path.Join(p.prefix, runID.String()) + "/"
}

// Publish uploads one table file and returns its signed URL.
func (p *Publisher) Publish(ctx context.Context, runID uuid.UUID, table omop.Table, data []byte) (string, error) {
	key := p.Key(runID, table)
	_, err := p.store.Put(ctx, key, bytes.NewReader(data), blobstore.PutOptions{
		ContentType: tsvContentType,
		Metadata: map[string]string{
			"export_run_id": runID.String(),
			"omop_table":    string(table),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	url, err := p.store.PresignURL(ctx, key, p.ttl)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return url, nil
}

// Artifacts lists the files stored for a run.
func (p *Publisher) Artifacts(ctx context.Context, runID uuid.UUID) ([]blobstore.Info, error) {
	return p.store.List(ctx, p.runPrefix(runID))
}

// Prune deletes every file stored for a run and returns how many were removed.
func (p *Publisher) Prune(ctx context.Context, runID uuid.UUID) (int, error) {
	items, err := p.Artifacts(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}
	removed := 0
	for _, it := range items {
		if err := p.store.Delete(ctx, it.Key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", it.Key, err)
		}
		removed++
	}
	return removed, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"oipulse/internal/domain/catalog"
	"oipulse/pkg/errors"
)

// Compile-time check that we implement the interface
var _ catalog.CacheRepository = (*CatalogCacheRepository)(nil)

// CatalogCacheRepository persists the instrument catalog as a single-row
// blob with its last-updated timestamp.
type CatalogCacheRepository struct {
	db DBTX
}

// NewCatalogCacheRepository creates a new catalog cache repository
func NewCatalogCacheRepository(db DBTX) *CatalogCacheRepository {
	return &CatalogCacheRepository{db: db}
}

// Save replaces the cached listing
func (r *CatalogCacheRepository) Save(ctx context.Context, l *catalog.Listing) error {
	data, err := json.Marshal(l.Instruments)
	if err != nil {
		return errors.Wrap(err, "failed to marshal catalog")
	}

	query := `
		INSERT INTO catalog_cache (id, data, last_updated)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, last_updated = EXCLUDED.last_updated`

	_, err = r.db.ExecContext(ctx, query, data, l.FetchedAt)
	return err
}

// Load returns the cached listing
func (r *CatalogCacheRepository) Load(ctx context.Context) (*catalog.Listing, error) {
	var data []byte
	var lastUpdated time.Time

	row := r.db.QueryRowContext(ctx, `SELECT data, last_updated FROM catalog_cache WHERE id = 1`)
	err := row.Scan(&data, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(errors.ErrNotFound, "catalog cache empty")
	}
	if err != nil {
		return nil, err
	}

	var instruments []catalog.Instrument
	if err := json.Unmarshal(data, &instruments); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal catalog cache")
	}

	return &catalog.Listing{Instruments: instruments, FetchedAt: lastUpdated}, nil
}

package snapshot

import (
	"fmt"
	"log"

	"vcanalyst/internal/config"
)

// Open builds the store selected by cfg.Backend. Durable backends are
// wrapped in a CachedStore.
func Open(cfg config.SnapshotConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.SnapshotMemory:
		log.Printf("snapshot store: in-memory (capacity=%d)", cfg.CacheSize)
		return NewMemoryStore(cfg.CacheSize)
	case config.SnapshotPostgres:
		pg, err := OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		log.Printf("snapshot store: postgres")
		return NewCachedStore(pg, cfg.CacheSize)
	case config.SnapshotS3:
		if !cfg.S3.Complete() {
			return nil, fmt.Errorf("snapshot store: s3 config incomplete")
		}
		s3, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot s3 store: %w", err)
		}
		log.Printf("snapshot store: s3 bucket=%s endpoint=%s", cfg.S3.Bucket, cfg.S3.Endpoint)
		return NewCachedStore(s3, cfg.CacheSize)
	default:
		return nil, fmt.Errorf("snapshot store: unknown backend %q", cfg.Backend)
	}
}

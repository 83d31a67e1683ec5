package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"

	"github.com/jjckrbbt/phoenix/internal/connections"
)

// DefaultIndexTTL is how long a decoded index file is reused before it is
// read again.
const DefaultIndexTTL = 5 * time.Minute

type fileEntry struct {
	index  *memoryIndex
	loaded time.Time
}

// IndexCache opens indexes by location and keeps them for reuse. Index
// files (local or gs://) expire after the TTL; vector database pools live
// until Close.
type IndexCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	files   map[string]fileEntry
	vectors map[string]*vectorIndex
	gcs     *storage.Client

	now     func() time.Time
	connect func(ctx context.Context, dsn string) (*connections.Client, error)
	newGCS  func(ctx context.Context) (*storage.Client, error)
	logger  *slog.Logger
}

// NewIndexCache creates an IndexCache. A non-positive ttl selects
// DefaultIndexTTL.
func NewIndexCache(ttl time.Duration, logger *slog.Logger) *IndexCache {
	if ttl <= 0 {
		ttl = DefaultIndexTTL
	}
	logger = logger.With("component", "index_cache")
	return &IndexCache{
		ttl:     ttl,
		files:   make(map[string]fileEntry),
		vectors: make(map[string]*vectorIndex),
		now:     time.Now,
		connect: func(ctx context.Context, dsn string) (*connections.Client, error) {
			return connections.ConnectDB(ctx, dsn, logger)
		},
		newGCS: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
		logger: logger,
	}
}

// Open returns the index at location, loading it on first use.
func (c *IndexCache) Open(ctx context.Context, location string) (Index, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("index location is empty")
	}
	if isVectorLocation(location) {
		return c.openVector(ctx, location)
	}
	return c.openFile(ctx, location)
}

func (c *IndexCache) openVector(ctx context.Context, location string) (Index, error) {
	c.mu.Lock()
	if idx, ok := c.vectors[location]; ok {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	dsn, table, err := parseVectorLocation(location)
	if err != nil {
		return nil, err
	}
	db, err := c.connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.vectors[location]; ok {
		// Lost a race with another opener.
		db.Close()
		return existing, nil
	}
	idx := &vectorIndex{db: db, table: table}
	c.vectors[location] = idx
	return idx, nil
}

func (c *IndexCache) openFile(ctx context.Context, location string) (Index, error) {
	c.mu.Lock()
	if e, ok := c.files[location]; ok && c.now().Sub(e.loaded) < c.ttl {
		c.mu.Unlock()
		return e.index, nil
	}
	c.mu.Unlock()

	var (
		idx *memoryIndex
		err error
	)
	if strings.HasPrefix(location, "gs://") {
		idx, err = c.loadGCS(ctx, location)
	} else {
		idx, err = loadLocal(location)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.files[location] = fileEntry{index: idx, loaded: c.now()}
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "Index loaded", "location", location, "chunks", len(idx.chunks))
	return idx, nil
}

func loadLocal(path string) (*memoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()
	return decodeIndex(f, path)
}

func (c *IndexCache) loadGCS(ctx context.Context, location string) (*memoryIndex, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return nil, fmt.Errorf("invalid GCS location '%s', want gs://bucket/object", location)
	}

	client, err := c.gcsClient(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	defer r.Close()
	return decodeIndex(r, location)
}

func (c *IndexCache) gcsClient(ctx context.Context) (*storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gcs != nil {
		return c.gcs, nil
	}
	client, err := c.newGCS(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	c.gcs = client
	return client, nil
}

// Ping checks every vector database pool opened so far. File indexes have
// nothing to check.
func (c *IndexCache) Ping(ctx context.Context) error {
	c.mu.Lock()
	pools := make([]*connections.Client, 0, len(c.vectors))
	for _, idx := range c.vectors {
		pools = append(pools, idx.db)
	}
	c.mu.Unlock()

	for _, db := range pools {
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("vector index unreachable: %w", err)
		}
	}
	return nil
}

// Close releases every open pool and the GCS client.
func (c *IndexCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for loc, idx := range c.vectors {
		idx.db.Close()
		delete(c.vectors, loc)
	}
	if c.gcs != nil {
		if err := c.gcs.Close(); err != nil {
			c.logger.Warn("Failed to close GCS client", "error", err)
		}
		c.gcs = nil
	}
	c.files = make(map[string]fileEntry)
}

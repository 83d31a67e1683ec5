package connections

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

const connectTimeout = 10 * time.Second

// Client holds a connection pool to one vector database.
type Client struct {
	Pool *pgxpool.Pool
}

// ConnectDB opens a pool to databaseURL with the pgvector types registered on
// every connection. The pool is pinged before it is returned.
func ConnectDB(ctx context.Context, databaseURL string, logger *slog.Logger) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool with custom config: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info("Vector database connected and pgvector type registered",
		"host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return &Client{Pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (c *Client) Close() {
	c.Pool.Close()
}

// Ping verifies the connection to the database is still alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.Pool.Ping(ctx)
}

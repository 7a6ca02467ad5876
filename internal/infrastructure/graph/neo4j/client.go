package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

// Client owns the shared Bolt driver handle used by both the traversal side
// and the writer side. The handle is connection-pooled and safe for
// concurrent use; Close releases it.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Client{
		driver:   driver,
		database: database,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

func (c *Client) session(ctx context.Context) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
}

func wrapGraphError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		neo4j.IsConnectivityError(err) ||
		neo4j.IsTransactionExecutionLimit(err) {
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

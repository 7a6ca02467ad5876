package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

const proxyUpsertQuery = `
UNWIND $proxies AS proxy
MERGE (p:Proxy:Entity {name: proxy.name})
SET p.kind = proxy.kind, p.source = proxy.source
WITH p, proxy
UNWIND coalesce(proxy.binds, []) AS address
MERGE (e:Endpoint:Entity {name: address})
MERGE (p)-[:BINDS]->(e)`

const routeUpsertQuery = `
MERGE (p:Proxy:Entity {name: $proxy})
WITH p
UNWIND $routes AS route
MERGE (s:Service:Entity {name: route.upstream})
MERGE (p)-[r:ROUTES_TO {route: route.name}]->(s)
SET r.rule = route.rule`

// WriteProxies upserts proxy nodes together with the endpoints they bind in
// a single batched statement. Re-running the same batch is a no-op apart
// from refreshed properties.
func (c *Client) WriteProxies(ctx context.Context, proxies []domain.Proxy) (domain.WriteStats, error) {
	if len(proxies) == 0 {
		return domain.WriteStats{}, nil
	}
	rows, err := proxyRows(proxies)
	if err != nil {
		return domain.WriteStats{}, err
	}
	return c.write(ctx, "neo4j write proxies", proxyUpsertQuery, map[string]any{"proxies": rows})
}

// WriteRoutes attaches routing edges from one proxy to its upstream
// services, creating the service nodes as needed.
func (c *Client) WriteRoutes(ctx context.Context, proxyName string, routes []domain.Route) (domain.WriteStats, error) {
	if strings.TrimSpace(proxyName) == "" {
		return domain.WriteStats{}, domain.WrapError(domain.ErrInvalidArgument, "neo4j write routes", fmt.Errorf("proxy name is empty"))
	}
	if len(routes) == 0 {
		return domain.WriteStats{}, nil
	}
	rows, err := routeRows(routes)
	if err != nil {
		return domain.WriteStats{}, err
	}
	params := map[string]any{
		"proxy":  proxyName,
		"routes": rows,
	}
	return c.write(ctx, "neo4j write routes", routeUpsertQuery, params)
}

func (c *Client) write(ctx context.Context, operation, query string, params map[string]any) (domain.WriteStats, error) {
	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return domain.WriteStats{}, wrapGraphError(operation, err)
	}

	summary, ok := result.(neo4j.ResultSummary)
	if !ok {
		return domain.WriteStats{}, fmt.Errorf("%s: unexpected result type %T", operation, result)
	}
	counters := summary.Counters()
	return domain.WriteStats{
		NodesCreated:         counters.NodesCreated(),
		RelationshipsCreated: counters.RelationshipsCreated(),
	}, nil
}

func proxyRows(proxies []domain.Proxy) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(proxies))
	for i, p := range proxies {
		if strings.TrimSpace(p.Name) == "" {
			return nil, domain.WrapError(domain.ErrInvalidArgument, "neo4j write proxies", fmt.Errorf("proxy %d has an empty name", i))
		}
		rows = append(rows, map[string]any{
			"name":   p.Name,
			"kind":   p.Kind,
			"source": p.Source,
			"binds":  p.Binds,
		})
	}
	return rows, nil
}

func routeRows(routes []domain.Route) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(routes))
	for i, r := range routes {
		if strings.TrimSpace(r.Upstream) == "" {
			return nil, domain.WrapError(domain.ErrInvalidArgument, "neo4j write routes", fmt.Errorf("route %d has an empty upstream", i))
		}
		rows = append(rows, map[string]any{
			"name":     r.Name,
			"rule":     r.Rule,
			"upstream": r.Upstream,
		})
	}
	return rows, nil
}

package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

const (
	defaultMaxHops = 2

	// maxFactRows bounds a single traversal so a dense neighborhood cannot
	// flood the answer context.
	maxFactRows = 100
)

// RelationshipPriority lists the relationship types a traversal expands,
// strongest topology signal first.
func RelationshipPriority() []string {
	return []string{"DEPENDS_ON", "ROUTES_TO", "BINDS", "EXPOSES_ENDPOINT", "MENTIONS"}
}

// TraverseFromEntities expands the undirected neighborhood around the named
// entities up to maxHops hops and returns the paths as flat facts, nearest
// first. Names are matched exactly; unknown names simply contribute no rows.
func (c *Client) TraverseFromEntities(ctx context.Context, entityNames []string, maxHops int) ([]domain.GraphFact, error) {
	if len(entityNames) == 0 {
		return []domain.GraphFact{}, nil
	}

	query, params := buildTraversalQuery(entityNames, RelationshipPriority(), maxHops, maxFactRows)

	session := c.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, wrapGraphError("neo4j traverse", err)
	}

	records, ok := result.([]*db.Record)
	if !ok {
		return nil, fmt.Errorf("neo4j traverse: unexpected result type %T", result)
	}

	facts := make([]domain.GraphFact, 0, len(records))
	for _, record := range records {
		facts = append(facts, factFromRecord(record))
	}
	return facts, nil
}

// buildTraversalQuery renders the variable-length path match. The
// relationship union and the hop bound are part of the pattern syntax and
// cannot be passed as parameters, so they are interpolated; everything else
// travels in the parameter map.
func buildTraversalQuery(entityNames, relationshipTypes []string, maxHops, limit int) (string, map[string]any) {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	if limit <= 0 || limit > maxFactRows {
		limit = maxFactRows
	}
	if len(relationshipTypes) == 0 {
		relationshipTypes = RelationshipPriority()
	}

	query := fmt.Sprintf(`
UNWIND $names AS seed
MATCH path = (origin:Entity {name: seed})-[:%s*1..%d]-(target:Entity)
RETURN origin.name AS start_entity,
       [rel IN relationships(path) | type(rel)] AS relationships,
       target.name AS end_entity,
       labels(target) AS end_labels,
       properties(target) AS end_properties,
       length(path) AS hop_count
ORDER BY hop_count ASC
LIMIT $limit`, strings.Join(relationshipTypes, "|"), maxHops)

	params := map[string]any{
		"names": entityNames,
		"limit": limit,
	}
	return query, params
}

func factFromRecord(record *db.Record) domain.GraphFact {
	return domain.GraphFact{
		StartEntity:   stringField(record, "start_entity"),
		Relationships: stringSliceField(record, "relationships"),
		EndEntity:     stringField(record, "end_entity"),
		EndLabels:     stringSliceField(record, "end_labels"),
		EndProperties: mapField(record, "end_properties"),
		HopCount:      intField(record, "hop_count"),
	}
}

func stringField(record *db.Record, key string) string {
	value, ok := record.Get(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

func stringSliceField(record *db.Record, key string) []string {
	value, ok := record.Get(key)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapField(record *db.Record, key string) map[string]any {
	value, ok := record.Get(key)
	if !ok {
		return nil
	}
	m, _ := value.(map[string]any)
	return m
}

func intField(record *db.Record, key string) int {
	value, ok := record.Get(key)
	if !ok {
		return 0
	}
	n, _ := value.(int64)
	return int(n)
}

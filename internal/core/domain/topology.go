package domain

// Proxy is a reverse-proxy or load-balancer node discovered by ingestion.
type Proxy struct {
	Name     string         `json:"name"`
	Kind     string         `json:"kind,omitempty"`
	Source   string         `json:"source,omitempty"`
	Binds    []string       `json:"binds,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Route is one forwarding rule from a proxy to an upstream service.
type Route struct {
	Name     string         `json:"name"`
	Rule     string         `json:"rule,omitempty"`
	Upstream string         `json:"upstream"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WriteStats reports what a batched graph write changed.
type WriteStats struct {
	NodesCreated         int `json:"nodes_created"`
	RelationshipsCreated int `json:"relationships_created"`
}

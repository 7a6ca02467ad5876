package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stackatlas/stackatlas/internal/core/domain"
)

// Client is a search-side Qdrant HTTP client. Collection management and
// indexing belong to the ingestion subsystem; this client only reads.
type Client struct {
	baseURL    string
	collection string
	vectorSize int
	httpClient *http.Client
}

func New(baseURL, collection string, vectorSize int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		vectorSize: vectorSize,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.Candidate, error) {
	if len(queryVector) != c.vectorSize {
		return nil, domain.WrapError(domain.ErrInvalidArgument, "qdrant search",
			fmt.Errorf("embedding has %d dimensions, collection expects %d", len(queryVector), c.vectorSize))
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildMetadataFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("qdrant search request: %w", err)
		}
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, searchStatusError(resp)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Candidate{
			ID:        pointIDString(r.ID),
			Content:   getStringPayload(r.Payload, "content"),
			Score:     r.Score,
			DocID:     getStringPayload(r.Payload, "doc_id"),
			SourceURL: getStringPayload(r.Payload, "source_url"),
			Section:   getStringPayload(r.Payload, "section"),
			Metadata:  r.Payload,
		})
	}
	return out, nil
}

// buildMetadataFilter AND-combines the source-type and after-date predicates.
// No requested predicates means no filter at all, never an empty one.
func buildMetadataFilter(filter domain.SearchFilter) map[string]any {
	if filter.Empty() {
		return nil
	}

	must := make([]map[string]any, 0, 2)
	if len(filter.SourceTypes) > 0 {
		must = append(must, map[string]any{
			"key": "source_type",
			"match": map[string]any{
				"any": filter.SourceTypes,
			},
		})
	}
	if filter.After != nil {
		must = append(must, map[string]any{
			"key": "ingested_at",
			"range": map[string]any{
				"gte": filter.After.Unix(),
			},
		})
	}
	return map[string]any{"must": must}
}

func searchStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := fmt.Errorf("qdrant search status: %s", resp.Status)
	if msg := strings.TrimSpace(string(body)); msg != "" {
		err = fmt.Errorf("qdrant search status: %s: %s", resp.Status, msg)
	}
	if isUpstreamHTTPStatus(resp.StatusCode) {
		return domain.WrapError(domain.ErrUpstreamUnavailable, "qdrant search", err)
	}
	return err
}

func isUpstreamHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func pointIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"bookticket/internal/config"
	"bookticket/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// FailedEventIndex mirrors dead-lettered events into Elasticsearch for operator search
type FailedEventIndex struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

type Query struct {
	Text      string
	Status    models.FailedEventStatus
	EventType models.EventType
	BookingID int64
	From      int
	Size      int
}

type Result struct {
	Total  int64                `json:"total"`
	Events []models.FailedEvent `json:"events"`
}

func NewFailedEventIndex(cfg config.ElasticsearchConfig) (*FailedEventIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
		Transport:     &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	index := &FailedEventIndex{client: es, config: cfg}

	if err := index.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return index, nil
}

func (c *FailedEventIndex) ensureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{c.config.Index}}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":            map[string]any{"type": "long"},
				"event_type":    map[string]any{"type": "keyword"},
				"booking_id":    map[string]any{"type": "long"},
				"user_id":       map[string]any{"type": "long"},
				"show_id":       map[string]any{"type": "long"},
				"total_amount":  map[string]any{"type": "double"},
				"reason":        map[string]any{"type": "text"},
				"event_payload": map[string]any{"type": "text", "index": false},
				"status":        map[string]any{"type": "keyword"},
				"retry_count":   map[string]any{"type": "integer"},
				"max_retries":   map[string]any{"type": "integer"},
				"last_error":    map[string]any{"type": "text"},
				"created_at":    map[string]any{"type": "date"},
				"last_retry_at": map[string]any{"type": "date"},
				"processed_at":  map[string]any{"type": "date"},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createRes, err := esapi.IndicesCreateRequest{Index: c.config.Index, Body: bytes.NewReader(body)}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// Index upserts the event document keyed by its id
func (c *FailedEventIndex) Index(ctx context.Context, event *models.FailedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: strconv.FormatInt(event.ID, 10),
		Body:       bytes.NewReader(body),
	}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index failed event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}
	return nil
}

func (c *FailedEventIndex) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Size <= 0 {
		q.Size = 20
	}

	request := map[string]any{
		"query": buildQuery(q),
		"sort":  []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
		"from":  q.From,
		"size":  q.Size,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.FailedEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	result := &Result{Total: response.Hits.Total.Value, Events: make([]models.FailedEvent, len(response.Hits.Hits))}
	for i, hit := range response.Hits.Hits {
		result.Events[i] = hit.Source
	}
	return result, nil
}

func buildQuery(q Query) map[string]any {
	var must []map[string]any
	var filter []map[string]any

	if q.Text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q.Text,
				"fields": []string{"last_error", "reason"},
			},
		})
	}
	if q.Status != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"status": q.Status}})
	}
	if q.EventType != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"event_type": q.EventType}})
	}
	if q.BookingID != 0 {
		filter = append(filter, map[string]any{"term": map[string]any{"booking_id": q.BookingID}})
	}

	if len(must) == 0 && len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]any{"bool": boolQuery}
}

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"security-service/internal/config"
	"security-service/internal/models"
	"security-service/internal/util"
)

// ESClient maintains the investigation search index over security events.
// All writes through it are best-effort duplicates of the ClickHouse stream.
type ESClient struct {
	Client *elasticsearch.Client
	config *config.ElasticsearchConfig
	logger *zap.Logger
}

func NewElasticsearchClient(cfg *config.Config, logger *zap.Logger) (*ESClient, error) {
	esConfig := cfg.Elasticsearch

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.IsDevelopment(), // Skip verify in dev only
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
	}

	elasticConfig := elasticsearch.Config{
		Addresses: []string{esConfig.URL},
		Username:  esConfig.Username,
		Password:  esConfig.Password,
		Transport: transport,
	}

	client, err := elasticsearch.NewClient(elasticConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	esClient := &ESClient{
		Client: client,
		config: &esConfig,
		logger: logger,
	}

	if err := esClient.HealthCheck(); err != nil {
		return nil, fmt.Errorf("elasticsearch connection test failed: %w", err)
	}

	util.Info("Elasticsearch client initialized",
		zap.String("url", esConfig.URL),
		zap.String("event_index", esConfig.EventIndex),
	)

	return esClient, nil
}

func (e *ESClient) Close() {
	util.Info("Elasticsearch client shutdown")
}

func (e *ESClient) HealthCheck() error {
	res, err := e.Client.Info()
	if err != nil {
		return fmt.Errorf("failed to get cluster info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}

	return nil
}

// IndexEvent writes one security event into the search index.
func (e *ESClient) IndexEvent(ctx context.Context, event *models.SecurityEvent) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(event); err != nil {
		return fmt.Errorf("error encoding event: %w", err)
	}

	res, err := e.Client.Index(
		e.config.EventIndex,
		&buf,
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(uuid.New().String()),
	)
	if err != nil {
		return fmt.Errorf("error indexing event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

// EventSearchParams narrow an investigation query. Zero values are omitted.
type EventSearchParams struct {
	EventType string
	TenantID  string
	ScopeKey  string
	Since     time.Time
	Size      int
}

// SearchEvents queries the event index, newest first.
func (e *ESClient) SearchEvents(ctx context.Context, params EventSearchParams) ([]models.SecurityEvent, error) {
	var filters []map[string]interface{}
	if params.EventType != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"event_type.keyword": params.EventType},
		})
	}
	if params.TenantID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"tenant_id.keyword": params.TenantID},
		})
	}
	if params.ScopeKey != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"scope_key.keyword": params.ScopeKey},
		})
	}
	if !params.Since.IsZero() {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"recorded_at": map[string]interface{}{"gte": params.Since.UTC().Format(time.RFC3339)},
			},
		})
	}

	size := params.Size
	if size <= 0 || size > 500 {
		size = 50
	}

	query := map[string]interface{}{
		"size": size,
		"sort": []map[string]interface{}{
			{"recorded_at": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.config.EventIndex),
		e.Client.Search.WithBody(&buf),
		e.Client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing search: %w", err)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.SecurityEvent `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := e.parseResponse(res, &parsed); err != nil {
		return nil, err
	}

	events := make([]models.SecurityEvent, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		events = append(events, hit.Source)
	}
	return events, nil
}

func (e *ESClient) parseResponse(res *esapi.Response, target interface{}) error {
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch error: [%s] %s", res.Status(), string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	return nil
}

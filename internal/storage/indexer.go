// Package storage mirrors persisted alerts into an OpenSearch index so they
// can be searched next to the rest of the SIEM data.
package storage

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// Config holds OpenSearch connection and index configuration
type Config struct {
	URL             string
	Username        string
	Password        string
	TLSSkipVerify   bool
	IndexPrefix     string
	ShardCount      int
	ReplicaCount    int
	RefreshInterval string
}

// DefaultConfig returns sensible defaults for OpenSearch configuration
func DefaultConfig() Config {
	return Config{
		URL:             "https://localhost:9200",
		Username:        "admin",
		Password:        "admin",
		TLSSkipVerify:   true,
		IndexPrefix:     "flowhawk-alerts",
		ShardCount:      1,
		ReplicaCount:    0,
		RefreshInterval: "5s",
	}
}

// Result reports the outcome of a bulk request.
type Result struct {
	Indexed int      `json:"indexed"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Indexer writes alerts to daily indices named {prefix}-YYYY.MM.DD, keyed by
// alert id so a replay overwrites instead of duplicating.
type Indexer struct {
	client *opensearch.Client
	config Config
	logger *slog.Logger
}

// NewIndexer creates a client for cfg. No request is made until Initialize.
func NewIndexer(cfg Config, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Indexer{
		client: client,
		config: cfg,
		logger: logger.With(slog.String("component", "opensearch")),
	}, nil
}

// Initialize verifies the connection and installs the alert index template.
func (x *Indexer) Initialize(ctx context.Context) error {
	info, err := x.client.Info(x.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	if err := x.createIndexTemplate(ctx); err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}

	x.logger.InfoContext(ctx, "OpenSearch initialized", slog.String("index_prefix", x.config.IndexPrefix))
	return nil
}

// IndexName returns the daily index an alert belongs to.
func (x *Indexer) IndexName(a models.Alert) string {
	return fmt.Sprintf("%s-%s", x.config.IndexPrefix, a.Timestamp.UTC().Format("2006.01.02"))
}

// Index writes a single alert.
func (x *Indexer) Index(ctx context.Context, a models.Alert) error {
	res, err := x.IndexAlerts(ctx, []models.Alert{a})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("failed to index alert %s: %v", a.ID, res.Errors)
	}
	return nil
}

// IndexAlerts bulk indexes alerts. Per item failures are reported in the
// Result; the error is reserved for failures of the bulk request itself.
func (x *Indexer) IndexAlerts(ctx context.Context, alerts []models.Alert) (*Result, error) {
	res := &Result{}
	if len(alerts) == 0 {
		return res, nil
	}

	var (
		mu       sync.Mutex
		flushErr error
	)
	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client: x.client,
		OnError: func(ctx context.Context, err error) {
			mu.Lock()
			flushErr = errors.Join(flushErr, err)
			mu.Unlock()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	for _, a := range alerts {
		data, err := json.Marshal(document(a))
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("failed to marshal alert %s: %v", a.ID, err))
			continue
		}

		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Index:      x.IndexName(a),
			Action:     "index",
			DocumentID: a.ID,
			Body:       bytes.NewReader(data),
			OnSuccess: func(ctx context.Context, item opensearchutil.BulkIndexerItem, r opensearchutil.BulkIndexerResponseItem) {
				mu.Lock()
				res.Indexed++
				mu.Unlock()
			},
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, r opensearchutil.BulkIndexerResponseItem, err error) {
				mu.Lock()
				defer mu.Unlock()
				res.Failed++
				if err != nil {
					res.Errors = append(res.Errors, err.Error())
				} else {
					res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", r.Error.Type, r.Error.Reason))
				}
			},
		})
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("failed to add to bulk indexer: %v", err))
		}
	}

	if err := bi.Close(ctx); err != nil {
		return res, fmt.Errorf("bulk indexer close error: %w", err)
	}
	if flushErr != nil {
		return res, fmt.Errorf("bulk request failed: %w", flushErr)
	}
	return res, nil
}

// Ping checks that the cluster answers.
func (x *Indexer) Ping(ctx context.Context) error {
	res, err := x.client.Ping(x.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opensearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch ping returned %s", res.Status())
	}
	return nil
}

// document flattens an alert into the indexed shape. Meta is stored but not
// indexed (see alertMappings).
func document(a models.Alert) map[string]interface{} {
	return map[string]interface{}{
		"@timestamp":  a.Timestamp.UTC(),
		"id":          a.ID,
		"ingested_at": a.IngestedAt.UTC(),
		"severity":    a.Severity,
		"attack_type": a.AttackType,
		"src_endpoint": map[string]interface{}{
			"ip":   a.SrcIP,
			"port": a.SrcPort,
		},
		"dst_endpoint": map[string]interface{}{
			"ip":   a.DstIP,
			"port": a.DstPort,
		},
		"protocol":    a.Protocol,
		"rule_id":     a.RuleID,
		"rule_name":   a.RuleName,
		"model_score": a.ModelScore,
		"model_label": a.ModelLabel,
		"meta":        a.Meta,
	}
}

func (x *Indexer) createIndexTemplate(ctx context.Context) error {
	template := map[string]interface{}{
		"index_patterns": []string{x.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   x.config.ShardCount,
				"number_of_replicas": x.config.ReplicaCount,
				"refresh_interval":   x.config.RefreshInterval,
			},
			"mappings": alertMappings(),
		},
		"priority": 100,
	}

	body, err := json.Marshal(template)
	if err != nil {
		return err
	}

	res, err := x.client.Indices.PutIndexTemplate(
		x.config.IndexPrefix+"-template",
		bytes.NewReader(body),
		x.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index template: %s - %s", res.Status(), string(bodyBytes))
	}
	return nil
}

func alertMappings() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	endpoint := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ip":   map[string]interface{}{"type": "ip"},
			"port": map[string]interface{}{"type": "integer"},
		},
	}
	return map[string]interface{}{
		"dynamic": true,
		"properties": map[string]interface{}{
			"@timestamp":   map[string]interface{}{"type": "date"},
			"ingested_at":  map[string]interface{}{"type": "date"},
			"id":           keyword,
			"severity":     keyword,
			"attack_type":  keyword,
			"protocol":     keyword,
			"rule_id":      keyword,
			"rule_name":    map[string]interface{}{"type": "text", "fields": map[string]interface{}{"keyword": keyword}},
			"model_score":  map[string]interface{}{"type": "float"},
			"model_label":  keyword,
			"src_endpoint": endpoint,
			"dst_endpoint": endpoint,
			"meta": map[string]interface{}{
				"type":    "object",
				"enabled": false,
			},
		},
	}
}

// Package searchindex implements external.SearchIndexer against
// Elasticsearch, replacing flowmanager's original
// tableschema_elasticsearch.Storage-backed search index (spec.md §4.D
// step 7, environment variables EVENTS_ELASTICSEARCH_HOST,
// DATASETS_INDEX_NAME).
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/datopian/flowmanager/external"
)

type Indexer struct {
	client *elasticsearch.Client
	index  string
}

func New(addresses []string, index string) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Indexer{client: client, index: index}, nil
}

func (ix *Indexer) Index(ctx context.Context, doc external.DatasetDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      ix.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	resp, err := req.Do(ctx, ix.client)
	if err != nil {
		return fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("index document %s: %s", doc.ID, resp.String())
	}
	return nil
}

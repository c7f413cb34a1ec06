// Package es implements ports.SearchBackend on Elasticsearch. Full rebuilds
// use a blue/green index pair per document type behind an alias; partial
// updates use the Bulk update action.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

// Error values returned by the backend for callers to react to.
var (
	ErrTooManyRequests = fmt.Errorf("elasticsearch: too many requests (429)")
	ErrServerError     = fmt.Errorf("elasticsearch: server error (5xx)")
)

const (
	blueSuffix  = "-blue"
	greenSuffix = "-green"
)

// Backend implements ports.SearchBackend against an Elasticsearch cluster.
type Backend struct {
	client *elasticsearch.Client
	prefix string
	caps   ports.Capabilities
}

// NewBackend constructs a Backend. Index names are "<prefix><type>-blue" and
// "<prefix><type>-green" with the alias "<prefix><type>" marking the active
// one.
func NewBackend(client *elasticsearch.Client, prefix string) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("client must not be nil")
	}
	return &Backend{
		client: client,
		prefix: prefix,
		caps: ports.Capabilities{
			PartialUpdate: true,
			IndexSwap:     true,
		},
	}, nil
}

// Capabilities implements ports.SearchBackend.
func (b *Backend) Capabilities() ports.Capabilities { return b.caps }

func (b *Backend) alias(documentType string) string {
	return b.prefix + documentType
}

// activeIndex resolves which physical index the alias points at. When the
// alias does not exist yet the blue index is treated as active.
func (b *Backend) activeIndex(ctx context.Context, documentType string) (string, error) {
	index, _, err := b.resolveAlias(ctx, documentType)
	return index, err
}

func (b *Backend) resolveAlias(ctx context.Context, documentType string) (string, bool, error) {
	alias := b.alias(documentType)
	res, err := b.client.Indices.GetAlias(
		b.client.Indices.GetAlias.WithContext(ctx),
		b.client.Indices.GetAlias.WithName(alias),
	)
	if err != nil {
		return "", false, fmt.Errorf("get alias %s: %w", alias, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return alias + blueSuffix, false, nil
	}
	if res.IsError() {
		return "", false, fmt.Errorf("get alias %s: %s", alias, res.Status())
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("decode alias response: %w", err)
	}
	for index := range body {
		if strings.HasPrefix(index, alias) {
			return index, true, nil
		}
	}
	return alias + blueSuffix, false, nil
}

func (b *Backend) backupIndex(ctx context.Context, documentType string) (string, error) {
	active, err := b.activeIndex(ctx, documentType)
	if err != nil {
		return "", err
	}
	alias := b.alias(documentType)
	if strings.HasSuffix(active, greenSuffix) {
		return alias + blueSuffix, nil
	}
	return alias + greenSuffix, nil
}

// DeleteIndex implements ports.SearchBackend. Deleting an absent index is
// not an error.
func (b *Backend) DeleteIndex(ctx context.Context, documentType string) error {
	backup, err := b.backupIndex(ctx, documentType)
	if err != nil {
		return err
	}
	res, err := b.client.Indices.Delete(
		[]string{backup},
		b.client.Indices.Delete.WithContext(ctx),
		b.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", backup, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index %s: %s", backup, res.Status())
	}
	return nil
}

// Index implements ports.SearchBackend against the active index.
func (b *Backend) Index(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error) {
	active, err := b.activeIndex(ctx, documentType)
	if err != nil {
		return nil, err
	}
	return b.bulk(ctx, active, "index", docs)
}

// IndexToBackup implements ports.SearchBackend against the backup index of
// the blue/green pair.
func (b *Backend) IndexToBackup(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error) {
	backup, err := b.backupIndex(ctx, documentType)
	if err != nil {
		return nil, err
	}
	return b.bulk(ctx, backup, "index", docs)
}

// IndexPartial implements ports.SearchBackend with the Bulk update action,
// touching only the submitted fields.
func (b *Backend) IndexPartial(ctx context.Context, documentType string, docs []*domain.IndexDocument) (*domain.IndexingResult, error) {
	active, err := b.activeIndex(ctx, documentType)
	if err != nil {
		return nil, err
	}
	return b.bulk(ctx, active, "update", docs)
}

// SwapIndex implements ports.SearchBackend: the alias is atomically moved
// from the active index to the freshly built backup.
func (b *Backend) SwapIndex(ctx context.Context, documentType string) error {
	active, aliased, err := b.resolveAlias(ctx, documentType)
	if err != nil {
		return err
	}
	backup, err := b.backupIndex(ctx, documentType)
	if err != nil {
		return err
	}

	// On the very first swap the alias does not exist yet; there is nothing
	// to remove.
	list := []any{
		map[string]any{"add": map[string]any{"index": backup, "alias": b.alias(documentType)}},
	}
	if aliased {
		list = append([]any{
			map[string]any{"remove": map[string]any{"index": active, "alias": b.alias(documentType)}},
		}, list...)
	}
	actions := map[string]any{"actions": list}
	payload, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode alias actions: %w", err)
	}

	res, err := b.client.Indices.UpdateAliases(
		bytes.NewReader(payload),
		b.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("swap alias %s: %w", b.alias(documentType), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("swap alias %s: %s", b.alias(documentType), res.String())
	}
	return nil
}

// Delete implements ports.SearchBackend. Deleting an absent document counts
// as success.
func (b *Backend) Delete(ctx context.Context, documentType string, ids []string) (*domain.IndexingResult, error) {
	if len(ids) == 0 {
		return &domain.IndexingResult{}, nil
	}
	active, err := b.activeIndex(ctx, documentType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		meta := map[string]any{"delete": map[string]any{"_index": active, "_id": id}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encode bulk meta: %w", err)
		}
	}
	return b.sendBulk(ctx, &buf, domain.OpDelete)
}

// Search implements ports.SearchBackend. The pipeline uses it only to derive
// index state, so the query shape is deliberately small.
func (b *Backend) Search(ctx context.Context, documentType string, query ports.SearchQuery) (*ports.SearchResult, error) {
	var index string
	var err error
	if query.Backup {
		index, err = b.backupIndex(ctx, documentType)
	} else {
		index, err = b.activeIndex(ctx, documentType)
	}
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query":            map[string]any{"match_all": map[string]any{}},
		"track_total_hits": true,
	}
	if query.SortField != "" {
		order := "asc"
		if query.SortDesc {
			order = "desc"
		}
		body["sort"] = []any{map[string]any{query.SortField: map[string]any{"order": order, "unmapped_type": "keyword"}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	size := query.Size
	if size < 0 {
		size = 0
	}
	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(index),
		b.client.Search.WithBody(bytes.NewReader(payload)),
		b.client.Search.WithSize(size),
		b.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return &ports.SearchResult{}, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", index, res.Status())
	}

	var decoded struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &ports.SearchResult{TotalCount: decoded.Hits.Total.Value}
	for _, hit := range decoded.Hits.Hits {
		doc := domain.NewIndexDocument(hit.ID)
		for k, v := range hit.Source {
			doc.SetField(domain.Field{Key: k, Value: v, Retrievable: true})
		}
		out.Documents = append(out.Documents, doc)
	}
	return out, nil
}

func (b *Backend) bulk(ctx context.Context, index, action string, docs []*domain.IndexDocument) (*domain.IndexingResult, error) {
	if len(docs) == 0 {
		return &domain.IndexingResult{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{action: map[string]any{"_index": index, "_id": doc.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encode bulk meta: %w", err)
		}
		source := docSource(doc)
		var line any = source
		if action == "update" {
			line = map[string]any{"doc": source}
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	op := domain.OpIndex
	if action == "update" {
		op = domain.OpPartial
	}
	return b.sendBulk(ctx, &buf, op)
}

func (b *Backend) sendBulk(ctx context.Context, buf *bytes.Buffer, op domain.Operation) (*domain.IndexingResult, error) {
	res, err := b.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		b.client.Bulk.WithContext(ctx),
		b.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		// 409 Conflict: idempotent conflict, ignore per policy.
		return &domain.IndexingResult{}, nil
	}
	if res.StatusCode == http.StatusTooManyRequests {
		return nil, ErrTooManyRequests
	}
	if res.StatusCode >= 500 && res.StatusCode <= 599 {
		return nil, ErrServerError
	}
	if res.IsError() {
		return nil, fmt.Errorf("bulk error: %s", res.String())
	}

	var body struct {
		Items []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	result := &domain.IndexingResult{}
	for _, item := range body.Items {
		for _, v := range item {
			outcome := domain.DocumentOutcome{ID: v.ID, Op: op}
			failed := v.Status >= 400
			// A delete of an absent document is idempotent success, and so
			// is a version conflict.
			if op == domain.OpDelete && v.Status == http.StatusNotFound {
				failed = false
			}
			if v.Status == http.StatusConflict {
				failed = false
			}
			if failed {
				if v.Error != nil {
					outcome.Err = fmt.Sprintf("%s: %s", v.Error.Type, v.Error.Reason)
				} else {
					outcome.Err = fmt.Sprintf("status %d", v.Status)
				}
			}
			result.Append(outcome)
		}
	}
	return result, nil
}

// docSource flattens a document's fields into the indexed source. Field
// flags inform mappings, which the pipeline does not manage.
func docSource(doc *domain.IndexDocument) map[string]any {
	source := make(map[string]any, len(doc.Fields))
	for _, f := range doc.Fields {
		source[f.Key] = f.Value
	}
	return source
}

// File path: internal/vector/chroma.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
)

// ChromaStore talks to a Chroma server over its v1 HTTP API. It implements
// Store and can be selected instead of the embedded SQLite index when a
// shared server is available.
type ChromaStore struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL      string
	collection   string
	collectionID string
	apiKey       string

	mu sync.RWMutex
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

// NewChroma constructs a client and ensures the collection exists. A server
// that cannot be reached is an index error: the caller decides whether that
// is fatal (no other store) or a reason to fall back.
func NewChroma(ctx context.Context, cfg Config) (*ChromaStore, error) {
	logger := common.Logger()
	logger.Info("vector: initializing chroma client",
		"host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)

	transport := &http.Transport{MaxIdleConns: 16, IdleConnTimeout: 90 * time.Second}
	c := &ChromaStore{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:  transport,
		baseURL:    strings.TrimRight(fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port), "/"),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
	}
	if err := c.ensureReady(ctx); err != nil {
		return nil, compliance.IndexErrorf("chroma unreachable: %v", err)
	}
	logger.Info("vector: chroma connection established", "collection", cfg.Collection)
	return c, nil
}

func (c *ChromaStore) ensureReady(ctx context.Context) error {
	c.mu.RLock()
	ready := c.collectionID != ""
	c.mu.RUnlock()
	if ready {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = c.heartbeat(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}
	return c.ensureCollectionID(ctx)
}

func (c *ChromaStore) heartbeat(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+"/heartbeat", nil, nil)
}

func (c *ChromaStore) ensureCollectionID(ctx context.Context) error {
	id, err := c.findCollection(ctx, c.collection)
	if err != nil {
		return err
	}
	if id == "" {
		id, err = c.createCollection(ctx, c.collection)
		if err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.collectionID = id
	c.mu.Unlock()
	return nil
}

func (c *ChromaStore) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	var resp struct {
		Collections []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		// Some servers reject the name filter; enumerate instead.
		if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/collections", nil, &resp); err != nil {
			return "", err
		}
	}
	for _, col := range resp.Collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *ChromaStore) createCollection(ctx context.Context, name string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	payload := map[string]interface{}{"name": name}
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/collections", payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *ChromaStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return false, compliance.IndexErrorf("chroma: %v", err)
	}
	payload := map[string]interface{}{"ids": []string{id}, "include": []string{}}
	endpoint := fmt.Sprintf("%s/collections/%s/get", c.baseURL, url.PathEscape(c.collectionID))
	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return false, compliance.IndexErrorf("chroma get: %v", err)
	}
	return len(resp.IDs) > 0, nil
}

func (c *ChromaStore) Upsert(ctx context.Context, records []Record) error {
	if err := c.ensureReady(ctx); err != nil {
		return compliance.IndexErrorf("chroma: %v", err)
	}
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	embeddings := make([][]float32, 0, len(records))
	documents := make([]string, 0, len(records))
	metadatas := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		embeddings = append(embeddings, rec.Vector)
		documents = append(documents, rec.Text)
		metadatas = append(metadatas, rec.Metadata)
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(c.collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(c.collectionID))
			if fallbackErr := c.doRequest(ctx, http.MethodPost, fallback, payload, nil); fallbackErr != nil {
				return compliance.IndexErrorf("chroma add: %v", fallbackErr)
			}
			return nil
		}
		return compliance.IndexErrorf("chroma upsert: %v", err)
	}
	return nil
}

func (c *ChromaStore) Search(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, compliance.IndexErrorf("chroma: %v", err)
	}
	if limit <= 0 {
		limit = 5
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vec},
		"n_results":        limit,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(c.collectionID))
	var resp struct {
		IDs       [][]string            `json:"ids"`
		Distances [][]float64           `json:"distances"`
		Metadatas [][]map[string]string `json:"metadatas"`
		Documents [][]string            `json:"documents"`
	}
	start := time.Now()
	err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp)
	telemetry.RecordSearch(time.Since(start))
	if err != nil {
		return nil, compliance.IndexErrorf("chroma query: %v", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, len(resp.IDs[0]))
	for idx, id := range resp.IDs[0] {
		m := Match{ID: id}
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) {
			m.Text = resp.Documents[0][idx]
		}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			m.Metadata = resp.Metadatas[0][idx]
		}
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			// Chroma returns a distance; fold it into a similarity in (0, 1].
			m.Score = 1.0 / (1.0 + resp.Distances[0][idx])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *ChromaStore) Count(ctx context.Context) (int, error) {
	if err := c.ensureReady(ctx); err != nil {
		return 0, compliance.IndexErrorf("chroma: %v", err)
	}
	endpoint := fmt.Sprintf("%s/collections/%s/count", c.baseURL, url.PathEscape(c.collectionID))
	var count int
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &count); err != nil {
		return 0, compliance.IndexErrorf("chroma count: %v", err)
	}
	return count, nil
}

func (c *ChromaStore) doRequest(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases pooled connections.
func (c *ChromaStore) Close() error {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

var _ Store = (*ChromaStore)(nil)

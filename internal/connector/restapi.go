package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// RESTAPIConnector ingests JSON records from an HTTP endpoint. The
// response body must be a JSON array of objects, or an object whose
// resource key holds such an array.
type RESTAPIConnector struct {
	warehouse *sql.DB
	client    *http.Client
}

// NewRESTAPI creates a connector writing into the given warehouse.
// client may be nil.
func NewRESTAPI(warehouse *sql.DB, client *http.Client) *RESTAPIConnector {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &RESTAPIConnector{warehouse: warehouse, client: client}
}

// Ingest fetches the endpoint and loads its records into destination.
func (c *RESTAPIConnector) Ingest(ctx context.Context, spec *core.IngestSpec, projection core.Projection, destination string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid endpoint %q: %w", spec.Endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", spec.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("endpoint %s returned %s: %s", spec.Endpoint, resp.Status, body)
	}

	records, err := decodeRecords(resp.Body, spec.Resource)
	if err != nil {
		return 0, fmt.Errorf("failed to decode response from %s: %w", spec.Endpoint, err)
	}

	return loadRecords(ctx, c.warehouse, destination, records, projection)
}

// decodeRecords parses the response into a list of flat objects.
func decodeRecords(r io.Reader, resource string) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	// Object envelope: records live under the resource key.
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("response is neither an array nor an object")
	}
	nested, ok := envelope[resource]
	if !ok {
		return nil, fmt.Errorf("resource key %q not found in response", resource)
	}
	if err := json.Unmarshal(nested, &records); err != nil {
		return nil, fmt.Errorf("resource %q is not an array of objects: %w", resource, err)
	}
	return records, nil
}

// loadRecords turns loose JSON objects into a positional table load.
// Column set and types come from the records themselves; the projection
// narrows which keys land in the warehouse.
func loadRecords(ctx context.Context, db *sql.DB, destination string, records []map[string]any, projection core.Projection) (int64, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to load into %s", destination)
	}

	seen := make(map[string]bool)
	var names []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	names, err := projectColumns(names, projection)
	if err != nil {
		return 0, err
	}

	// Infer each column's type from its first non-nil value.
	cols := make([]column, len(names))
	for i, name := range names {
		typ := "VARCHAR"
		for _, rec := range records {
			if v, ok := rec[name]; ok && v != nil {
				typ = duckdbType(v)
				break
			}
		}
		cols[i] = column{name: name, typ: typ}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(names))
		for j, name := range names {
			row[j] = normalizeValue(rec[name])
		}
		rows[i] = row
	}

	return loadRows(ctx, db, destination, cols, rows)
}

// normalizeValue flattens nested JSON values to their string form so
// they fit a scalar column.
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, bool, string, float64, int, int64:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

var _ core.IngestionConnector = (*RESTAPIConnector)(nil)

package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/gcp"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// RequiredEventColumns must exist on the intent events table before the
// analytics worker streams into it.
var RequiredEventColumns = []string{"event_id", "event_type", "occurred_at", "intent_id", "state", "payload"}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("intent events table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client streams intent lifecycle rows into one BigQuery table.
type Client struct {
	bq     *bigquery.Client
	events *bigquery.Table
}

// NewClient connects and refuses to start when the intent events table is
// missing or lacks the columns the worker writes.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	tableID := strings.TrimSpace(cfg.IntentEventsTable)
	if tableID == "" {
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{bq: bq, events: bq.Dataset(datasetID).Table(tableID)}
	if err := client.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset": datasetID,
			"table":   tableID,
		}), "bigquery intent events table ready")
	}
	return client, nil
}

// EventsTable names the destination table.
func (c *Client) EventsTable() string {
	if c == nil || c.events == nil {
		return ""
	}
	return c.events.TableID
}

// Ping checks that the intent events table exists with its required columns.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.events == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	meta, err := c.events.Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %s.%s does not exist", c.events.DatasetID, c.events.TableID)
		}
		return fmt.Errorf("checking table %s.%s: %w", c.events.DatasetID, c.events.TableID, err)
	}
	if missing := missingColumns(meta.Schema, RequiredEventColumns); len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %s", c.events.TableID, strings.Join(missing, ", "))
	}
	return nil
}

// PutIntentEvents streams rows into the intent events table. Savers pick
// their own insert ids, which BigQuery uses for best-effort dedupe.
func (c *Client) PutIntentEvents(ctx context.Context, rows []bigquery.ValueSaver) error {
	if c == nil || c.events == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	return c.events.Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func missingColumns(schema bigquery.Schema, required []string) []string {
	present := make(map[string]struct{}, len(schema))
	for _, field := range schema {
		if field != nil {
			present[strings.ToLower(field.Name)] = struct{}{}
		}
	}
	var missing []string
	for _, name := range required {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

// Package airtable is the Airtable sink, talking to the REST API directly.
// Records are keyed by the "Package ID" field for updates.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"content_engine/internal/domain"
	"content_engine/internal/storage"
)

// Sink writes content records into per-channel Airtable bases.
type Sink struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewSink(baseURL, apiKey string, logger *slog.Logger) *Sink {
	return &Sink{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger.With(slog.String("sink", "airtable")),
	}
}

func recordFields(rec *storage.Record) map[string]interface{} {
	return map[string]interface{}{
		"Package ID":          rec.PackageID,
		"Channel ID":          rec.ChannelID,
		"Channel Name":        rec.ChannelName,
		"Video Title":         rec.Title,
		"Thumbnail Name":      rec.ThumbnailTxt,
		"Video Description":   rec.Description,
		"Video Tags":          rec.Tags,
		"Thumbnail Image URL": rec.ImageURL,
		"Video URL":           rec.VideoURL,
		"Status":              rec.Status,
		"Created By":          rec.CreatedBy,
		"Created At":          rec.CreatedAt,
		"Updated At":          rec.UpdatedAt,
	}
}

func (s *Sink) tableURL(routing *domain.RoutingConfig) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("airtable api key not configured")
	}
	if routing.AirtableBaseID == "" {
		return "", fmt.Errorf("no airtable base for channel %s", routing.ChannelID)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, routing.AirtableBaseID, url.PathEscape(routing.AirtableTable)), nil
}

func (s *Sink) do(ctx context.Context, method, rawURL string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Append creates a new Airtable record for the package.
func (s *Sink) Append(ctx context.Context, routing *domain.RoutingConfig, rec *storage.Record) error {
	tableURL, err := s.tableURL(routing)
	if err != nil {
		return err
	}

	body := map[string]interface{}{"fields": recordFields(rec)}
	if err := s.do(ctx, http.MethodPost, tableURL, body, nil); err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	s.logger.Info("saved record to airtable",
		slog.String("package_id", rec.PackageID),
		slog.String("base", routing.AirtableBaseID),
	)
	return nil
}

type listResponse struct {
	Records []struct {
		ID string `json:"id"`
	} `json:"records"`
}

func (s *Sink) findRecordID(ctx context.Context, tableURL, packageID string) (string, error) {
	query := url.Values{}
	query.Set("filterByFormula", fmt.Sprintf("{Package ID} = '%s'", packageID))
	query.Set("maxRecords", "1")

	var list listResponse
	if err := s.do(ctx, http.MethodGet, tableURL+"?"+query.Encode(), nil, &list); err != nil {
		return "", fmt.Errorf("find record: %w", err)
	}
	if len(list.Records) == 0 {
		return "", nil
	}
	return list.Records[0].ID, nil
}

// Update rewrites the record matching the package id, creating it when no
// match exists.
func (s *Sink) Update(ctx context.Context, routing *domain.RoutingConfig, rec *storage.Record) error {
	tableURL, err := s.tableURL(routing)
	if err != nil {
		return err
	}

	recordID, err := s.findRecordID(ctx, tableURL, rec.PackageID)
	if err != nil {
		return err
	}
	if recordID == "" {
		return s.Append(ctx, routing, rec)
	}

	body := map[string]interface{}{"fields": recordFields(rec)}
	if err := s.do(ctx, http.MethodPatch, tableURL+"/"+recordID, body, nil); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	s.logger.Info("updated record in airtable",
		slog.String("package_id", rec.PackageID),
		slog.String("record_id", recordID),
	)
	return nil
}

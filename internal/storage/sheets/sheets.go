// Package sheets is the Google Sheets sink. Rows follow the production sheet
// layout: STT | Ảnh gen title | Title Video | Tên Thumb | Description | Tags |
// Ảnh Thumb, with the title column acting as the row key for updates.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"content_engine/internal/domain"
	"content_engine/internal/storage"
)

var headerRow = []interface{}{
	"STT", "Ảnh gen title", "Title Video", "Tên Thumb", "Description", "Tags", "Ảnh Thumb",
}

// Sink appends and updates content rows in per-channel spreadsheets. The
// Sheets service is built lazily on first use so the engine starts without
// Google credentials when no channel routes to Sheets.
type Sink struct {
	credentialsFile string
	logger          *slog.Logger

	mu      sync.Mutex
	service *sheets.Service
}

func NewSink(credentialsFile string, logger *slog.Logger) *Sink {
	return &Sink{
		credentialsFile: credentialsFile,
		logger:          logger.With(slog.String("sink", "google_sheets")),
	}
}

func (s *Sink) client(ctx context.Context) (*sheets.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.service != nil {
		return s.service, nil
	}
	if s.credentialsFile == "" {
		return nil, fmt.Errorf("google credentials file not configured")
	}

	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(s.credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	s.service = service
	return service, nil
}

// worksheetTitle resolves which tab to write to: GID first, then the
// configured sheet name, then the spreadsheet's first tab.
func (s *Sink) worksheetTitle(ctx context.Context, service *sheets.Service, routing *domain.RoutingConfig, spreadsheetID string) (string, error) {
	spreadsheet, err := service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get spreadsheet: %w", err)
	}
	if len(spreadsheet.Sheets) == 0 {
		return "", fmt.Errorf("spreadsheet has no sheets")
	}

	_, gid := routing.SheetTarget()
	if gid != "" {
		want, err := strconv.ParseInt(gid, 10, 64)
		if err == nil {
			for _, sheet := range spreadsheet.Sheets {
				if sheet.Properties.SheetId == want {
					return sheet.Properties.Title, nil
				}
			}
		}
		s.logger.Warn("worksheet gid not found, falling back",
			slog.String("gid", gid),
			slog.String("spreadsheet_id", spreadsheetID),
		)
	}

	if routing.GoogleSheetName != "" {
		for _, sheet := range spreadsheet.Sheets {
			if sheet.Properties.Title == routing.GoogleSheetName {
				return sheet.Properties.Title, nil
			}
		}
		s.logger.Warn("worksheet name not found, using first sheet",
			slog.String("name", routing.GoogleSheetName),
		)
	}

	return spreadsheet.Sheets[0].Properties.Title, nil
}

func recordRow(stt interface{}, rec *storage.Record) []interface{} {
	return []interface{}{
		stt,
		rec.ImageURL,
		rec.Title,
		rec.ThumbnailTxt,
		rec.Description,
		rec.Tags,
		rec.ImageURL,
	}
}

// Append adds the record as a new row, writing the header first on an empty
// sheet. STT numbering continues from the current row count.
func (s *Sink) Append(ctx context.Context, routing *domain.RoutingConfig, rec *storage.Record) error {
	spreadsheetID, _ := routing.SheetTarget()
	if spreadsheetID == "" {
		return fmt.Errorf("no spreadsheet id for channel %s", routing.ChannelID)
	}

	service, err := s.client(ctx)
	if err != nil {
		return err
	}

	title, err := s.worksheetTitle(ctx, service, routing, spreadsheetID)
	if err != nil {
		return err
	}
	readRange := fmt.Sprintf("'%s'!A:G", title)

	existing, err := service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read existing rows: %w", err)
	}

	var rows [][]interface{}
	stt := len(existing.Values)
	if stt == 0 {
		rows = append(rows, headerRow)
		stt = 1
	}
	rows = append(rows, recordRow(stt, rec))

	_, err = service.Spreadsheets.Values.Append(spreadsheetID, readRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}

	s.logger.Info("saved record to google sheets",
		slog.String("package_id", rec.PackageID),
		slog.String("worksheet", title),
		slog.Int("stt", stt),
	)
	return nil
}

// Update rewrites the row whose title column matches the record, keeping its
// STT. A missing row falls back to Append.
func (s *Sink) Update(ctx context.Context, routing *domain.RoutingConfig, rec *storage.Record) error {
	spreadsheetID, _ := routing.SheetTarget()
	if spreadsheetID == "" {
		return fmt.Errorf("no spreadsheet id for channel %s", routing.ChannelID)
	}

	service, err := s.client(ctx)
	if err != nil {
		return err
	}

	title, err := s.worksheetTitle(ctx, service, routing, spreadsheetID)
	if err != nil {
		return err
	}
	readRange := fmt.Sprintf("'%s'!A:G", title)

	existing, err := service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read existing rows: %w", err)
	}

	for i, row := range existing.Values {
		if i == 0 {
			continue
		}
		if len(row) > 2 && fmt.Sprint(row[2]) == rec.Title {
			rowNum := i + 1
			updateRange := fmt.Sprintf("'%s'!A%d:G%d", title, rowNum, rowNum)
			_, err := service.Spreadsheets.Values.Update(spreadsheetID, updateRange,
				&sheets.ValueRange{Values: [][]interface{}{recordRow(row[0], rec)}}).
				ValueInputOption("USER_ENTERED").
				Context(ctx).
				Do()
			if err != nil {
				return fmt.Errorf("update row %d: %w", rowNum, err)
			}
			s.logger.Info("updated record in google sheets",
				slog.String("package_id", rec.PackageID),
				slog.Int("row", rowNum),
			)
			return nil
		}
	}

	return s.Append(ctx, routing, rec)
}

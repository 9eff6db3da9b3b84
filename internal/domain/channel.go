package domain

import (
	"regexp"
	"time"
)

// ChannelConfig describes one managed YouTube channel and where its finished
// records are routed.
type ChannelConfig struct {
	ChannelID          string   `json:"channel_id"`
	ChannelName        string   `json:"channel_name"`
	ChannelDescription string   `json:"channel_description"`
	ContentStyle       string   `json:"content_style,omitempty"`
	TargetAudience     string   `json:"target_audience,omitempty"`
	ContentTopics      []string `json:"content_topics,omitempty"`

	GoogleSheetsID   string `json:"google_sheets_id,omitempty"`
	GoogleSheetName  string `json:"google_sheet_name,omitempty"`
	GoogleSheetGID   string `json:"google_sheet_gid,omitempty"`
	GoogleSheetURL   string `json:"google_sheet_url,omitempty"`
	AirtableBaseID   string `json:"airtable_base_id,omitempty"`
	AirtableTable    string `json:"airtable_table_name,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	IsActive  bool      `json:"is_active"`
}

// RoutingConfig resolves which sink locations a channel's records go to.
type RoutingConfig struct {
	ChannelID       string
	GoogleSheetsID  string
	GoogleSheetName string
	GoogleSheetGID  string
	GoogleSheetURL  string
	AirtableBaseID  string
	AirtableTable   string
}

var (
	spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	sheetGIDPattern      = regexp.MustCompile(`[#&]gid=([0-9]+)`)
)

// SheetTarget returns the spreadsheet id and tab gid, preferring values parsed
// out of a full sheet URL over the explicit fields.
func (r *RoutingConfig) SheetTarget() (sheetsID, gid string) {
	sheetsID, gid = r.GoogleSheetsID, r.GoogleSheetGID
	if r.GoogleSheetURL == "" {
		return sheetsID, gid
	}
	if m := spreadsheetIDPattern.FindStringSubmatch(r.GoogleSheetURL); m != nil {
		sheetsID = m[1]
	}
	if m := sheetGIDPattern.FindStringSubmatch(r.GoogleSheetURL); m != nil {
		gid = m[1]
	}
	return sheetsID, gid
}

// HasSheets reports whether the channel routes to a Google Sheets sink.
func (r *RoutingConfig) HasSheets() bool {
	id, _ := r.SheetTarget()
	return id != ""
}

// HasAirtable reports whether the channel routes to an Airtable sink.
func (r *RoutingConfig) HasAirtable() bool {
	return r.AirtableBaseID != ""
}

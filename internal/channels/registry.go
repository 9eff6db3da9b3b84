// Package channels manages the set of configured YouTube channels and their
// storage routing. The registry persists as a single JSON file so channel
// setup survives restarts without a database.
package channels

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gosimple/slug"

	"content_engine/internal/domain"
)

// Defaults supply registry-wide fallbacks applied when a channel entry leaves
// a routing field empty.
type Defaults struct {
	SpreadsheetID      string
	AirtableTable      string
	DefaultName        string
	DefaultDescription string
	DefaultCreatedBy   string
}

type fileLayout struct {
	SpreadsheetID string                  `json:"spreadsheet_id,omitempty"`
	Channels      []*domain.ChannelConfig `json:"channels"`
}

// Registry is the in-memory channel index backed by a JSON config file. Every
// mutating call writes the file back before returning.
type Registry struct {
	mu       sync.RWMutex
	path     string
	byID     map[string]*domain.ChannelConfig
	order    []string
	shared   string
	defaults Defaults
	logger   *slog.Logger
}

func NewRegistry(path string, defaults Defaults, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		path:     path,
		byID:     make(map[string]*domain.ChannelConfig),
		shared:   defaults.SpreadsheetID,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "channel_registry")),
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	if len(r.byID) == 0 {
		r.bootstrapDefault()
		if err := r.save(); err != nil {
			return nil, fmt.Errorf("persist default channel: %w", err)
		}
	}

	r.logger.Info("channel registry ready", slog.Int("channels", len(r.byID)))
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Info("channel config file not found, starting empty", slog.String("path", r.path))
			return nil
		}
		return fmt.Errorf("read channel config: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("parse channel config: %w", err)
	}

	if layout.SpreadsheetID != "" {
		r.shared = layout.SpreadsheetID
	}

	for _, ch := range layout.Channels {
		if ch.ChannelID == "" {
			r.logger.Warn("skipping channel entry without id", slog.String("name", ch.ChannelName))
			continue
		}
		// Entries written by older tooling omit is_active entirely;
		// absence means active.
		if !ch.IsActive && !rawHasActiveFlag(data, ch.ChannelID) {
			ch.IsActive = true
		}
		r.byID[ch.ChannelID] = ch
		r.order = append(r.order, ch.ChannelID)
	}
	return nil
}

// rawHasActiveFlag checks whether the channel's JSON object carries an
// explicit is_active key. json.Unmarshal cannot distinguish false from
// absent, and absent must default to true.
func rawHasActiveFlag(data []byte, channelID string) bool {
	var layout struct {
		Channels []map[string]json.RawMessage `json:"channels"`
	}
	if err := json.Unmarshal(data, &layout); err != nil {
		return false
	}
	for _, raw := range layout.Channels {
		var id string
		if err := json.Unmarshal(raw["channel_id"], &id); err != nil {
			continue
		}
		if id == channelID {
			_, ok := raw["is_active"]
			return ok
		}
	}
	return false
}

func (r *Registry) save() error {
	layout := fileLayout{
		SpreadsheetID: r.shared,
		Channels:      make([]*domain.ChannelConfig, 0, len(r.order)),
	}
	for _, id := range r.order {
		layout.Channels = append(layout.Channels, r.byID[id])
	}

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("encode channel config: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write channel config: %w", err)
	}
	return nil
}

func (r *Registry) bootstrapDefault() {
	id := "demo-channel"
	r.byID[id] = &domain.ChannelConfig{
		ChannelID:          id,
		ChannelName:        r.defaults.DefaultName,
		ChannelDescription: r.defaults.DefaultDescription,
		ContentStyle:       "calm and informative",
		TargetAudience:     "general audience",
		CreatedBy:          r.defaults.DefaultCreatedBy,
		CreatedAt:          time.Now(),
		IsActive:           true,
	}
	r.order = append(r.order, id)
	r.logger.Info("bootstrapped default channel", slog.String("channel_id", id))
}

// Get returns the channel with the given id, or nil when unknown.
func (r *Registry) Get(channelID string) *domain.ChannelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[channelID]
}

// List returns all channels in file order.
func (r *Registry) List() []*domain.ChannelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ChannelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Add registers a new channel and persists the registry. An existing id is
// overwritten in place.
func (r *Registry) Add(ch *domain.ChannelConfig) error {
	if ch.ChannelID == "" {
		return fmt.Errorf("channel id is required")
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	ch.IsActive = true

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[ch.ChannelID]; !exists {
		r.order = append(r.order, ch.ChannelID)
	}
	r.byID[ch.ChannelID] = ch

	if err := r.save(); err != nil {
		return err
	}
	r.logger.Info("channel added", slog.String("channel_id", ch.ChannelID), slog.String("name", ch.ChannelName))
	return nil
}

// Update applies non-empty fields from upd onto an existing channel. It
// returns false when the channel id is unknown.
func (r *Registry) Update(channelID string, upd *domain.ChannelConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.byID[channelID]
	if !ok {
		return false, nil
	}

	if upd.ChannelName != "" {
		ch.ChannelName = upd.ChannelName
	}
	if upd.ChannelDescription != "" {
		ch.ChannelDescription = upd.ChannelDescription
	}
	if upd.ContentStyle != "" {
		ch.ContentStyle = upd.ContentStyle
	}
	if upd.TargetAudience != "" {
		ch.TargetAudience = upd.TargetAudience
	}
	if len(upd.ContentTopics) > 0 {
		ch.ContentTopics = upd.ContentTopics
	}
	if upd.GoogleSheetsID != "" {
		ch.GoogleSheetsID = upd.GoogleSheetsID
	}
	if upd.GoogleSheetName != "" {
		ch.GoogleSheetName = upd.GoogleSheetName
	}
	if upd.GoogleSheetGID != "" {
		ch.GoogleSheetGID = upd.GoogleSheetGID
	}
	if upd.GoogleSheetURL != "" {
		ch.GoogleSheetURL = upd.GoogleSheetURL
	}
	if upd.AirtableBaseID != "" {
		ch.AirtableBaseID = upd.AirtableBaseID
	}
	if upd.AirtableTable != "" {
		ch.AirtableTable = upd.AirtableTable
	}

	if err := r.save(); err != nil {
		return true, err
	}
	r.logger.Info("channel updated", slog.String("channel_id", channelID))
	return true, nil
}

// Remove deletes a channel and persists the registry. It returns false when
// the channel id is unknown.
func (r *Registry) Remove(channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[channelID]; !ok {
		return false, nil
	}
	delete(r.byID, channelID)
	for i, id := range r.order {
		if id == channelID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if err := r.save(); err != nil {
		return true, err
	}
	r.logger.Info("channel removed", slog.String("channel_id", channelID))
	return true, nil
}

// Enrich fills channel-derived fields into a content request. Known channels
// overwrite the request's name and description and contribute a synthesized
// context line when the request has none. Unknown ids pass through untouched.
func (r *Registry) Enrich(in *domain.InputData) {
	if in.ChannelID == "" {
		return
	}

	ch := r.Get(in.ChannelID)
	if ch == nil {
		r.logger.Warn("enrich requested for unknown channel", slog.String("channel_id", in.ChannelID))
		return
	}

	in.ChannelName = ch.ChannelName
	in.ChannelDescription = ch.ChannelDescription
	if in.AdditionalContext == "" && (ch.ContentStyle != "" || ch.TargetAudience != "") {
		in.AdditionalContext = fmt.Sprintf("Style: %s. Audience: %s", ch.ContentStyle, ch.TargetAudience)
	}
	if in.CreatedBy == "" {
		in.CreatedBy = ch.CreatedBy
	}
}

// RoutingFor resolves where a channel's records should be written, layering
// registry-wide defaults under the channel's own routing fields.
func (r *Registry) RoutingFor(channelID string) *domain.RoutingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routing := &domain.RoutingConfig{
		ChannelID:      channelID,
		GoogleSheetsID: r.shared,
		AirtableTable:  r.defaults.AirtableTable,
	}

	ch, ok := r.byID[channelID]
	if !ok {
		return routing
	}
	if ch.GoogleSheetsID != "" {
		routing.GoogleSheetsID = ch.GoogleSheetsID
	}
	routing.GoogleSheetName = ch.GoogleSheetName
	routing.GoogleSheetGID = ch.GoogleSheetGID
	routing.GoogleSheetURL = ch.GoogleSheetURL
	routing.AirtableBaseID = ch.AirtableBaseID
	if ch.AirtableTable != "" {
		routing.AirtableTable = ch.AirtableTable
	}
	return routing
}

// AdHocID derives a registry-unique id for a channel named only in a request,
// e.g. "ad-hoc-calm-channel-3f9a2c".
func AdHocID(channelName string) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("ad-hoc-%s-%s", slug.Make(channelName), hex.EncodeToString(buf))
}

// Package storage persists finished content packages to per-channel sinks
// (Google Sheets and Airtable) through a routing layer. A save succeeds when
// at least one sink accepts the record.
package storage

import (
	"context"
	"strings"
	"time"

	"content_engine/internal/domain"
)

// sinkDescriptionLimit caps descriptions at the sinks; the package itself
// keeps the full text.
const sinkDescriptionLimit = 1000

// Record is the flattened, sink-ready form of a content package.
type Record struct {
	PackageID    string
	ChannelID    string
	ChannelName  string
	Title        string
	ThumbnailTxt string
	Description  string
	Tags         string
	ImageURL     string
	VideoURL     string
	Status       string
	CreatedBy    string
	CreatedAt    string
	UpdatedAt    string
}

// FromPackage flattens a package for the sinks: tags squashed to compound
// single words joined with ", ", image URLs joined with " | ", and the
// description capped.
func FromPackage(pkg *domain.ContentPackage) *Record {
	rec := &Record{
		PackageID:   pkg.ID,
		ChannelID:   pkg.ChannelID,
		ChannelName: pkg.Input.ChannelName,
		Status:      string(pkg.Status),
		CreatedBy:   pkg.Input.CreatedBy,
		CreatedAt:   pkg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   pkg.UpdatedAt.Format(time.RFC3339),
	}
	if rec.ChannelName == "" {
		rec.ChannelName = "Unknown Channel"
	}

	if content := pkg.GeneratedContent; content != nil {
		rec.Title = content.Title
		rec.ThumbnailTxt = content.ThumbnailText
		rec.Description = truncateRunes(content.Description, sinkDescriptionLimit)
		rec.Tags = strings.Join(squashTags(content.Tags), ", ")
	} else {
		rec.Title = "No Title"
		rec.ThumbnailTxt = "No Thumbnail"
		rec.Description = "No Description"
	}

	rec.ImageURL = pkg.GeneratedImages.DisplayURLs()
	return rec
}

var tagSquasher = strings.NewReplacer(
	" ", "", "-", "", ".", "", ",", "", "!", "", "?", "", ";", "", ":", "",
)

func squashTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := tagSquasher.Replace(strings.ToLower(strings.TrimSpace(tag)))
		if len(clean) > 1 {
			out = append(out, clean)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Sink writes records to one storage backend for a given channel routing.
type Sink interface {
	Append(ctx context.Context, routing *domain.RoutingConfig, rec *Record) error
	Update(ctx context.Context, routing *domain.RoutingConfig, rec *Record) error
}

package engine

import (
	"context"

	"content_engine/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

// ContentGenerator produces the metadata package for one request.
type ContentGenerator interface {
	Generate(ctx context.Context, in *domain.InputData) (*domain.GeneratedContent, error)
}

// ImageGenerator turns one image prompt into a batch of image URLs.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// RecordStore persists finished packages to the channel's configured sinks.
type RecordStore interface {
	SavePackage(ctx context.Context, pkg *domain.ContentPackage) error
	UpdatePackage(ctx context.Context, pkg *domain.ContentPackage) error
}

// ChannelDirectory looks up and enriches channel information.
type ChannelDirectory interface {
	Get(channelID string) *domain.ChannelConfig
	Enrich(in *domain.InputData)
}

// FrameResolver loads the request's optional reference frame as base64.
type FrameResolver interface {
	Resolve(ctx context.Context, in *domain.InputData) (string, error)
}

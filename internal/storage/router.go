package storage

import (
	"context"
	"fmt"
	"log/slog"

	"content_engine/internal/domain"
)

// RoutingResolver maps a channel id to its sink locations.
type RoutingResolver interface {
	RoutingFor(channelID string) *domain.RoutingConfig
}

// Router fans package writes out to every sink the channel routes to. A write
// counts as successful when at least one sink accepts it; sink errors are
// logged, not propagated, unless every sink fails.
type Router struct {
	resolver RoutingResolver
	sheets   Sink
	airtable Sink
	logger   *slog.Logger
}

func NewRouter(resolver RoutingResolver, sheetsSink, airtableSink Sink, logger *slog.Logger) *Router {
	return &Router{
		resolver: resolver,
		sheets:   sheetsSink,
		airtable: airtableSink,
		logger:   logger.With(slog.String("component", "storage_router")),
	}
}

// SavePackage writes the package to the channel's sinks.
func (r *Router) SavePackage(ctx context.Context, pkg *domain.ContentPackage) error {
	return r.dispatch(ctx, pkg, func(ctx context.Context, sink Sink, routing *domain.RoutingConfig, rec *Record) error {
		return sink.Append(ctx, routing, rec)
	})
}

// UpdatePackage rewrites the package's record in the channel's sinks.
func (r *Router) UpdatePackage(ctx context.Context, pkg *domain.ContentPackage) error {
	return r.dispatch(ctx, pkg, func(ctx context.Context, sink Sink, routing *domain.RoutingConfig, rec *Record) error {
		return sink.Update(ctx, routing, rec)
	})
}

func (r *Router) dispatch(ctx context.Context, pkg *domain.ContentPackage, op func(context.Context, Sink, *domain.RoutingConfig, *Record) error) error {
	routing := r.resolver.RoutingFor(pkg.ChannelID)
	rec := FromPackage(pkg)

	attempted := 0
	succeeded := 0
	var lastErr error

	if routing.HasSheets() && r.sheets != nil {
		attempted++
		if err := op(ctx, r.sheets, routing, rec); err != nil {
			lastErr = err
			r.logger.Error("google sheets write failed",
				slog.String("package_id", pkg.ID),
				slog.Any("error", err),
			)
		} else {
			succeeded++
		}
	}

	if routing.HasAirtable() && r.airtable != nil {
		attempted++
		if err := op(ctx, r.airtable, routing, rec); err != nil {
			lastErr = err
			r.logger.Error("airtable write failed",
				slog.String("package_id", pkg.ID),
				slog.Any("error", err),
			)
		} else {
			succeeded++
		}
	}

	if attempted == 0 {
		return fmt.Errorf("no sinks configured for channel %s", pkg.ChannelID)
	}
	if succeeded == 0 {
		return fmt.Errorf("all %d sinks failed for package %s: %w", attempted, pkg.ID, lastErr)
	}

	r.logger.Info("persisted package",
		slog.String("package_id", pkg.ID),
		slog.Int("sinks_ok", succeeded),
		slog.Int("sinks_attempted", attempted),
	)
	return nil
}

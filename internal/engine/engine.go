// Package engine owns the content package lifecycle: an in-memory registry
// of packages and the staged workflow that takes a request from PENDING to
// GENERATED (or FAILED). Content generation failure is fatal for a package;
// image generation and persistence failures are logged on the package and the
// workflow continues.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"content_engine/internal/channels"
	"content_engine/internal/domain"
	"content_engine/internal/metrics"
)

// Config tunes workflow behavior.
type Config struct {
	AutoGenerateImages bool
	MaxPackageAge      time.Duration
}

// Engine runs content workflows and tracks every package it has created.
type Engine struct {
	generator ContentGenerator
	images    ImageGenerator
	store     RecordStore
	channels  ChannelDirectory
	frames    FrameResolver
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu       sync.RWMutex
	packages map[string]*domain.ContentPackage
}

func New(generator ContentGenerator, images ImageGenerator, store RecordStore, directory ChannelDirectory, frames FrameResolver, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		generator: generator,
		images:    images,
		store:     store,
		channels:  directory,
		frames:    frames,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(slog.String("component", "workflow_engine")),
		packages:  make(map[string]*domain.ContentPackage),
	}
}

func newPackageID(now time.Time) string {
	buf := make([]byte, 2)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("pkg_%s_%s", now.Format("20060102150405"), hex.EncodeToString(buf))
}

// CreatePackage registers a new PENDING package for the request without
// running the workflow. Ad-hoc requests get a derived channel id.
func (e *Engine) CreatePackage(in *domain.InputData) *domain.ContentPackage {
	now := time.Now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	if in.ChannelID == "" && in.AdHoc() {
		in.ChannelID = channels.AdHocID(in.ChannelName)
	}

	pkg := &domain.ContentPackage{
		ID:        newPackageID(now),
		ChannelID: in.ChannelID,
		Input:     *in,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pkg.AddLog("package created")

	e.mu.Lock()
	e.packages[pkg.ID] = pkg
	e.mu.Unlock()

	e.metrics.IncPackagesCreated()
	e.logger.Info("package created",
		slog.String("package_id", pkg.ID),
		slog.String("channel_id", pkg.ChannelID),
	)
	return pkg
}

// Run executes the full workflow for one request and returns the finished
// package. The returned error is non-nil only when the package ended FAILED.
func (e *Engine) Run(ctx context.Context, in *domain.InputData) (*domain.ContentPackage, error) {
	pkg := e.CreatePackage(in)

	if pkg.Input.AdHoc() && strings.HasPrefix(pkg.ChannelID, "ad-hoc-") {
		e.withPackage(pkg, func() { pkg.AddLog("starting workflow for ad-hoc channel") })
	} else {
		e.withPackage(pkg, func() {
			e.channels.Enrich(&pkg.Input)
			pkg.AddLog("starting workflow for managed channel " + pkg.ChannelID)
		})
	}

	if err := e.stagePrepare(pkg); err != nil {
		e.withPackage(pkg, func() {
			pkg.AddLog("channel resolution failed: " + err.Error())
			pkg.SetStatus(domain.StatusFailed)
		})
		e.metrics.IncPackagesFailed()
		e.logger.Error("workflow failed",
			slog.String("package_id", pkg.ID),
			slog.Any("error", err),
		)
		return pkg, fmt.Errorf("prepare package: %w", err)
	}
	e.withPackage(pkg, func() { pkg.SetStatus(domain.StatusGeneratingContent) })

	if err := e.stageGenerateContent(ctx, pkg); err != nil {
		e.withPackage(pkg, func() {
			pkg.AddLog("content generation failed: " + err.Error())
			pkg.SetStatus(domain.StatusFailed)
		})
		e.metrics.IncPackagesFailed()
		e.logger.Error("workflow failed",
			slog.String("package_id", pkg.ID),
			slog.Any("error", err),
		)
		return pkg, fmt.Errorf("generate content: %w", err)
	}

	e.stageGenerateImages(ctx, pkg)
	e.stagePersist(ctx, pkg)

	e.withPackage(pkg, func() {
		pkg.SetStatus(domain.StatusGenerated)
		pkg.AddLog("workflow complete")
	})

	e.metrics.IncPackagesGenerated()
	e.logger.Info("workflow complete", slog.String("package_id", pkg.ID))
	return pkg, nil
}

// withPackage serializes package mutations against concurrent readers.
func (e *Engine) withPackage(_ *domain.ContentPackage, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// stagePrepare resolves the channel and folds its profile into the request
// context. A request that neither matches a registered channel nor carries
// its own ad-hoc name and description is a configuration error and fails the
// package before any generation stage runs.
func (e *Engine) stagePrepare(pkg *domain.ContentPackage) error {
	channel := e.channels.Get(pkg.ChannelID)
	if channel == nil {
		if pkg.Input.AdHoc() {
			return nil
		}
		return fmt.Errorf("cannot resolve channel %q", pkg.ChannelID)
	}

	style := channel.ContentStyle
	if style == "" {
		style = "not specified"
	}
	audience := channel.TargetAudience
	if audience == "" {
		audience = "not specified"
	}
	topics := "varied"
	if len(channel.ContentTopics) > 0 {
		topics = strings.Join(channel.ContentTopics, ", ")
	}

	enhanced := fmt.Sprintf(`Channel profile:
- Name: %s
- Style: %s
- Audience: %s
- Main topics: %s

Request context:
%s`, channel.ChannelName, style, audience, topics, pkg.Input.AdditionalContext)

	e.withPackage(pkg, func() {
		pkg.Input.AdditionalContext = enhanced
		pkg.AddLog("prepared channel context")
	})
	return nil
}

func (e *Engine) stageGenerateContent(ctx context.Context, pkg *domain.ContentPackage) error {
	e.withPackage(pkg, func() { pkg.AddLog("starting content generation") })

	if e.frames != nil {
		frame, err := e.frames.Resolve(ctx, &pkg.Input)
		switch {
		case err != nil:
			e.withPackage(pkg, func() { pkg.AddLog("reference frame unavailable: " + err.Error()) })
		case frame != "":
			e.withPackage(pkg, func() { pkg.AddLog("encoded reference frame") })
		}
	}

	content, err := e.generator.Generate(ctx, &pkg.Input)
	if err != nil {
		return err
	}

	e.withPackage(pkg, func() {
		pkg.GeneratedContent = content
		pkg.AddLog("generated content: " + truncateLog(content.Title, 50))
	})
	return nil
}

// stageGenerateImages is best-effort: failures leave the package without
// images but do not fail the workflow.
func (e *Engine) stageGenerateImages(ctx context.Context, pkg *domain.ContentPackage) {
	if !e.cfg.AutoGenerateImages || e.images == nil {
		return
	}
	if pkg.GeneratedContent == nil || len(pkg.GeneratedContent.ImagePrompts) == 0 {
		e.withPackage(pkg, func() { pkg.AddLog("skipping images: no prompts") })
		return
	}

	e.withPackage(pkg, func() { pkg.AddLog("starting image generation") })

	urls, err := e.images.Generate(ctx, pkg.GeneratedContent.ImagePrompts[0])
	if err != nil {
		e.withPackage(pkg, func() { pkg.AddLog("skipping images: " + err.Error()) })
		e.logger.Warn("image generation failed",
			slog.String("package_id", pkg.ID),
			slog.Any("error", err),
		)
		return
	}

	e.withPackage(pkg, func() {
		pkg.GeneratedImages = &domain.GeneratedImages{
			ThumbnailURL: urls[0],
			BatchURLs:    urls,
			Prompts:      pkg.GeneratedContent.ImagePrompts,
		}
		pkg.AddLog(fmt.Sprintf("generated %d images", len(urls)))
	})
	e.metrics.IncImageBatches()
}

// stagePersist is best-effort: a failed save is recorded on the package but
// does not fail the workflow.
func (e *Engine) stagePersist(ctx context.Context, pkg *domain.ContentPackage) {
	if e.store == nil {
		return
	}

	e.withPackage(pkg, func() { pkg.AddLog("saving package to storage") })

	if err := e.store.SavePackage(ctx, pkg); err != nil {
		e.withPackage(pkg, func() { pkg.AddLog("storage save failed: " + err.Error()) })
		e.metrics.IncStorageWriteErrors()
		e.logger.Warn("storage save failed",
			slog.String("package_id", pkg.ID),
			slog.Any("error", err),
		)
		return
	}
	e.withPackage(pkg, func() { pkg.AddLog("saved to storage") })
}

// RunBatch runs the workflow for each request in order. Failed packages stay
// in the result so callers can see what happened to every request.
func (e *Engine) RunBatch(ctx context.Context, inputs []domain.InputData) []*domain.ContentPackage {
	results := make([]*domain.ContentPackage, 0, len(inputs))
	for i := range inputs {
		pkg, err := e.Run(ctx, &inputs[i])
		if err != nil {
			e.logger.Error("batch item failed",
				slog.Int("item", i),
				slog.Any("error", err),
			)
		}
		results = append(results, pkg)
	}
	return results
}

// RunChannelBatch forces every request onto one channel before running.
func (e *Engine) RunChannelBatch(ctx context.Context, channelID string, inputs []domain.InputData) []*domain.ContentPackage {
	for i := range inputs {
		inputs[i].ChannelID = channelID
	}
	return e.RunBatch(ctx, inputs)
}

// Get returns a snapshot of the package, or nil when unknown.
func (e *Engine) Get(packageID string) *domain.ContentPackage {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pkg, ok := e.packages[packageID]
	if !ok {
		return nil
	}
	return snapshot(pkg)
}

// ListByChannel returns snapshots of the channel's packages, oldest first.
func (e *Engine) ListByChannel(channelID string) []*domain.ContentPackage {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*domain.ContentPackage
	for _, pkg := range e.packages {
		if pkg.ChannelID == channelID {
			out = append(out, snapshot(pkg))
		}
	}
	sortPackages(out)
	return out
}

// ListAll returns snapshots of every tracked package, oldest first.
func (e *Engine) ListAll() []*domain.ContentPackage {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.ContentPackage, 0, len(e.packages))
	for _, pkg := range e.packages {
		out = append(out, snapshot(pkg))
	}
	sortPackages(out)
	return out
}

func sortPackages(pkgs []*domain.ContentPackage) {
	sort.Slice(pkgs, func(i, j int) bool {
		if pkgs[i].CreatedAt.Equal(pkgs[j].CreatedAt) {
			return pkgs[i].ID < pkgs[j].ID
		}
		return pkgs[i].CreatedAt.Before(pkgs[j].CreatedAt)
	})
}

func snapshot(pkg *domain.ContentPackage) *domain.ContentPackage {
	cp := *pkg
	cp.Logs = append([]string(nil), pkg.Logs...)
	return &cp
}

// TrackedCount returns how many packages the registry currently holds.
func (e *Engine) TrackedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.packages)
}

// Statistics recomputes per-channel package counts from the registry.
func (e *Engine) Statistics() map[string]*domain.ChannelStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]*domain.ChannelStats)
	for _, pkg := range e.packages {
		cs, ok := stats[pkg.ChannelID]
		if !ok {
			cs = &domain.ChannelStats{
				ChannelName: pkg.Input.ChannelName,
				ByStatus:    make(map[domain.Status]int),
			}
			stats[pkg.ChannelID] = cs
		}
		cs.Total++
		cs.ByStatus[pkg.Status]++
	}
	return stats
}

// SelectImage records the operator's pick from the generated batch and
// pushes the updated record to the sinks.
func (e *Engine) SelectImage(ctx context.Context, packageID, imageURL string) error {
	e.mu.Lock()
	pkg, ok := e.packages[packageID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("package %s not found", packageID)
	}
	if pkg.GeneratedImages == nil {
		pkg.GeneratedImages = &domain.GeneratedImages{}
	}
	pkg.GeneratedImages.SelectedURL = imageURL
	pkg.GeneratedImages.ThumbnailURL = imageURL
	pkg.AddLog("selected image: " + imageURL)
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	if err := e.store.UpdatePackage(ctx, pkg); err != nil {
		e.withPackage(pkg, func() { pkg.AddLog("storage update failed: " + err.Error()) })
		return fmt.Errorf("update storage: %w", err)
	}
	e.withPackage(pkg, func() { pkg.AddLog("storage updated with selected image") })
	return nil
}

// Sweep drops terminal packages older than maxAge from the registry and
// returns how many were removed. Packages exactly at the limit are kept.
func (e *Engine) Sweep(maxAge time.Duration) int {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, pkg := range e.packages {
		if !pkg.Status.Terminal() {
			continue
		}
		if now.Sub(pkg.UpdatedAt) > maxAge {
			delete(e.packages, id)
			removed++
		}
	}

	if removed > 0 {
		e.logger.Info("swept old packages",
			slog.Int("removed", removed),
			slog.Int("remaining", len(e.packages)),
		)
	}
	return removed
}

func truncateLog(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

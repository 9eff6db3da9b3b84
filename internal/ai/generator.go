package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"content_engine/internal/diversity"
	"content_engine/internal/domain"
)

const maxConcurrentVariations = 4

// variationApproaches steer each parallel variation toward a different angle
// on the same topic.
var variationApproaches = []string{
	"detailed_analysis",
	"quick_guide",
	"beginner_tips",
	"advanced_insights",
	"practical_tutorial",
}

// GeneratorConfig tunes the staged generation pipeline.
type GeneratorConfig struct {
	MaxAttempts          int
	BaseTemperature      float64
	TemperatureStep      float64
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxTags              int
}

// Generator orchestrates the staged metadata pipeline: title and thumbnail
// text first, then description, tags, and image prompts, each stage feeding
// the next. Title and tag stages retry with raised temperature until the
// diversity tracker accepts the output, then settle for a deterministic
// fallback.
type Generator struct {
	provider TextProvider
	tracker  *diversity.Tracker
	prompts  PromptSet
	cfg      GeneratorConfig
	logger   *slog.Logger
}

func NewGenerator(provider TextProvider, tracker *diversity.Tracker, prompts PromptSet, cfg GeneratorConfig, logger *slog.Logger) *Generator {
	return &Generator{
		provider: provider,
		tracker:  tracker,
		prompts:  prompts,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "content_generator")),
	}
}

// Generate produces the full metadata package for one request. The staged
// pipeline is tried first; if the provider is unreachable for the title
// stage, one integrated single-shot request is attempted before giving up.
func (g *Generator) Generate(ctx context.Context, in *domain.InputData) (*domain.GeneratedContent, error) {
	content, err := g.generateStaged(ctx, in)
	if err == nil {
		return content, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	g.logger.Warn("staged generation failed, trying single-shot",
		slog.String("channel", in.ChannelName),
		slog.Any("error", err),
	)
	return g.generateSingleShot(ctx, in)
}

func (g *Generator) generateStaged(ctx context.Context, in *domain.InputData) (*domain.GeneratedContent, error) {
	title, thumbnail, err := g.generateTitle(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("title stage: %w", err)
	}

	description := g.generateDescription(ctx, title, in)
	tags := g.generateTags(ctx, title, description, in)

	keywords := tags
	if len(keywords) > 4 {
		keywords = keywords[:4]
	}
	imagePrompts := g.generateImagePrompts(ctx, title, keywords)

	content := &domain.GeneratedContent{
		Title:         title,
		Description:   description,
		Tags:          tags,
		ThumbnailText: thumbnail,
		ImagePrompts:  imagePrompts,
	}
	g.applyLimits(content)

	g.logger.Info("generated content package",
		slog.String("channel", in.ChannelName),
		slog.String("title", content.Title),
		slog.Int("tags", len(content.Tags)),
	)
	return content, nil
}

// generateTitle retries with raised temperature until the diversity tracker
// accepts the title. Diversity exhaustion falls back to a deterministic
// "topic | channel" title; only total provider failure is an error.
func (g *Generator) generateTitle(ctx context.Context, in *domain.InputData) (title, thumbnail string, err error) {
	basePrompt := buildTitlePrompt(g.prompts, in.ChannelName, in.ChannelDescription, in.VideoTopic, in.AdditionalContext)

	var lastErr error
	succeeded := false

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}

		// Rebuilt per attempt: concurrent variations keep recording titles,
		// so later attempts must see the current overused words.
		prompt := basePrompt + g.tracker.TitleInstruction()
		temperature := g.cfg.BaseTemperature + float64(attempt)*g.cfg.TemperatureStep
		response, genErr := g.provider.Generate(ctx, prompt, temperature)
		if genErr != nil {
			lastErr = genErr
			g.logger.Warn("title generation attempt failed",
				slog.Int("attempt", attempt+1),
				slog.Any("error", genErr),
			)
			continue
		}
		succeeded = true

		candidate, thumb := parseTitleResponse(response)
		if g.tracker.IsTitleDiverse(candidate) {
			g.tracker.RecordTitle(candidate)
			g.logger.Info("generated diverse title",
				slog.Int("attempt", attempt+1),
				slog.String("title", candidate),
			)
			return candidate, thumb, nil
		}

		g.logger.Warn("title not diverse enough, retrying",
			slog.Int("attempt", attempt+1),
			slog.String("title", candidate),
		)
	}

	if !succeeded {
		return "", "", fmt.Errorf("all %d attempts failed: %w", g.cfg.MaxAttempts, lastErr)
	}

	fallback := fmt.Sprintf("%s | %s", in.VideoTopic, in.ChannelName)
	g.tracker.RecordTitle(fallback)
	g.logger.Warn("using fallback title", slog.String("title", fallback))
	return fallback, "WATCH NOW", nil
}

func (g *Generator) generateDescription(ctx context.Context, title string, in *domain.InputData) string {
	channelContext := fmt.Sprintf("%s - %s", in.ChannelName, in.ChannelDescription)
	prompt := buildDescriptionPrompt(g.prompts, title, channelContext)

	description, err := g.provider.Generate(ctx, prompt, 0.8)
	if err != nil {
		g.logger.Warn("description generation failed, using fallback", slog.Any("error", err))
		return fallbackDescription(in)
	}
	return description
}

func fallbackDescription(in *domain.InputData) string {
	return fmt.Sprintf(`Discover amazing content about %s on %s!

%s

🎯 Perfect for:
- Learning and entertainment
- High-quality content experience
- Engaging video content

Subscribe for more amazing videos!

#content #youtube #video #amazing`, in.VideoTopic, in.ChannelName, in.ChannelDescription)
}

// generateTags retries until a cleaned tag set passes the diversity check,
// then falls back to deterministic channel and topic derived tags.
func (g *Generator) generateTags(ctx context.Context, title, description string, in *domain.InputData) []string {
	channelContext := fmt.Sprintf("%s - %s", in.ChannelName, in.ChannelDescription)
	basePrompt := buildTagsPrompt(g.prompts, title, description, channelContext)

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		prompt := basePrompt + g.tracker.TagsInstruction()
		temperature := g.cfg.BaseTemperature + float64(attempt)*g.cfg.TemperatureStep
		response, err := g.provider.Generate(ctx, prompt, temperature)
		if err != nil {
			g.logger.Warn("tags generation attempt failed",
				slog.Int("attempt", attempt+1),
				slog.Any("error", err),
			)
			continue
		}

		tags := cleanTags(parseTagsResponse(response))
		if len(tags) == 0 {
			g.logger.Warn("no usable tags in response", slog.Int("attempt", attempt+1))
			continue
		}

		if g.tracker.IsTagsDiverse(tags) {
			g.tracker.RecordTags(tags)
			g.logger.Info("generated diverse tags",
				slog.Int("attempt", attempt+1),
				slog.Int("count", len(tags)),
			)
			return tags
		}
		g.logger.Warn("tags not diverse enough, retrying", slog.Int("attempt", attempt+1))
	}

	fallback := FallbackTags(in, title)
	g.tracker.RecordTags(fallback)
	g.logger.Warn("using fallback tags", slog.Int("count", len(fallback)))
	return fallback
}

var fallbackStopWords = map[string]struct{}{
	"with": {}, "and": {}, "the": {}, "for": {}, "of": {}, "in": {}, "to": {},
	"a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
}

var relaxationTags = []string{
	"music", "relax", "healingmusic", "piano", "watersounds",
	"relaxingcalming", "helios4k", "sleepmusic", "innerpeace",
	"relaxingmusic", "meditation", "mindfulness", "peaceful",
	"nature", "ambient", "calming", "soothing", "zen", "spa",
}

// FallbackTags derives a deterministic tag set from the channel name, topic,
// and title, padded with a fixed relaxation pool and capped at 12.
func FallbackTags(in *domain.InputData, title string) []string {
	var tags []string
	seen := make(map[string]struct{})

	add := func(tag string) {
		if len(tag) <= 2 {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		if _, stop := fallbackStopWords[tag]; stop {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	if in.ChannelName != "" {
		channelTag := strings.ToLower(in.ChannelName)
		channelTag = strings.NewReplacer(" ", "", ".", "", ",", "").Replace(channelTag)
		add(channelTag)
	}

	wordCleaner := strings.NewReplacer(".", "", ",", "", "!", "", "?", "")
	for _, word := range strings.Fields(strings.ToLower(in.VideoTopic)) {
		add(wordCleaner.Replace(word))
	}
	for _, word := range strings.Fields(strings.ToLower(title)) {
		add(wordCleaner.Replace(word))
	}

	for _, tag := range relaxationTags {
		if len(tags) >= 12 {
			break
		}
		add(tag)
	}

	if len(tags) > 12 {
		tags = tags[:12]
	}
	return tags
}

func (g *Generator) generateImagePrompts(ctx context.Context, title string, keywords []string) []string {
	prompt := buildImagePromptsPrompt(g.prompts, title, keywords)

	response, err := g.provider.Generate(ctx, prompt, 0.8)
	if err != nil {
		g.logger.Warn("image prompt generation failed, using fallbacks", slog.Any("error", err))
		return fallbackImagePrompts(title)
	}
	return parseImagePrompts(response, title)
}

type integratedResponse struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	ThumbnailText string   `json:"thumbnail_text"`
	ImagePrompts  []string `json:"image_prompts"`
}

// generateSingleShot asks for the entire package in one JSON response.
func (g *Generator) generateSingleShot(ctx context.Context, in *domain.InputData) (*domain.GeneratedContent, error) {
	prompt := buildIntegratedPrompt(in.ChannelName, in.ChannelDescription, in.VideoTopic, in.AdditionalContext)

	response, err := g.provider.Generate(ctx, prompt, 0.8)
	if err != nil {
		return nil, fmt.Errorf("single-shot generation: %w", err)
	}

	body := cleanJSONFences(response)
	var parsed integratedResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		extracted := extractJSONObject(body)
		if extracted == "" {
			return nil, fmt.Errorf("parse single-shot response: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
			return nil, fmt.Errorf("parse single-shot response: %w", err)
		}
	}

	content := &domain.GeneratedContent{
		Title:         parsed.Title,
		Description:   parsed.Description,
		Tags:          cleanTags(parsed.Tags),
		ThumbnailText: parsed.ThumbnailText,
		ImagePrompts:  parsed.ImagePrompts,
	}
	for len(content.ImagePrompts) < 3 {
		content.ImagePrompts = append(content.ImagePrompts, genericImagePrompt(content.Title))
	}
	content.ImagePrompts = content.ImagePrompts[:3]
	g.applyLimits(content)

	g.tracker.RecordTitle(content.Title)
	g.tracker.RecordTags(content.Tags)

	g.logger.Info("generated content package (single-shot)", slog.String("title", content.Title))
	return content, nil
}

func (g *Generator) applyLimits(content *domain.GeneratedContent) {
	content.Title = truncate(content.Title, g.cfg.MaxTitleLength)
	content.Description = truncate(content.Description, g.cfg.MaxDescriptionLength)
	if len(content.Tags) > g.cfg.MaxTags {
		content.Tags = content.Tags[:g.cfg.MaxTags]
	}
}

// Variations generates count takes on the same request concurrently, each
// steered toward a different approach. Failed variations are dropped; the
// result holds whatever succeeded, in variation order.
func (g *Generator) Variations(ctx context.Context, base *domain.InputData, count int) []*domain.GeneratedContent {
	results := make([]*domain.GeneratedContent, count)
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentVariations)

	for i := 0; i < count; i++ {
		group.Go(func() error {
			approach := variationApproaches[i%len(variationApproaches)]
			variant := *base
			variant.AdditionalContext = fmt.Sprintf("%s | Style: %s | Make content unique and different",
				base.AdditionalContext, approach)

			content, err := g.Generate(gctx, &variant)
			if err != nil {
				g.logger.Error("variation failed",
					slog.Int("variation", i+1),
					slog.Any("error", err),
				)
				return nil
			}
			mu.Lock()
			results[i] = content
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	out := make([]*domain.GeneratedContent, 0, count)
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

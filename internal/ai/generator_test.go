package ai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"content_engine/internal/diversity"
	"content_engine/internal/domain"
)

type stubProvider struct {
	fn func(prompt string, temperature float64) (string, error)
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, prompt string, temperature float64) (string, error) {
	return s.fn(prompt, temperature)
}

type GeneratorSuite struct {
	suite.Suite
	tracker *diversity.Tracker
	logger  *slog.Logger
}

func (s *GeneratorSuite) SetupTest() {
	s.tracker = diversity.NewTracker(0, 0)
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *GeneratorSuite) newGenerator(provider TextProvider) *Generator {
	return NewGenerator(provider, s.tracker, PromptSet{}, GeneratorConfig{
		MaxAttempts:          3,
		BaseTemperature:      0.9,
		TemperatureStep:      0.05,
		MaxTitleLength:       100,
		MaxDescriptionLength: 5000,
		MaxTags:              15,
	}, s.logger)
}

func respond(title, thumb string) string {
	return fmt.Sprintf("🎯 **OPTIMIZED TITLE:**\n%s\n🖼️ **THUMBNAIL TEXT:**\n%s", title, thumb)
}

func (s *GeneratorSuite) TestStagedPipeline() {
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		switch {
		case strings.Contains(prompt, "OPTIMIZED TITLE"):
			return respond("Peaceful Ocean Waves 🌊 Deep Sleep Sounds", "OCEAN CALM"), nil
		case strings.Contains(prompt, "description writer"):
			return "A long relaxing description with a hook.", nil
		case strings.Contains(prompt, "tags optimization"):
			return `{"tags": ["oceanwaves", "sleepsounds", "deeprelaxation"]}`, nil
		default:
			return "```\ncinematic ocean at dusk, wide 16:9 composition, negative space left\n```\n```\nmoonlit waves, soft lighting, 16:9, text overlay space\n```\n```\naerial ocean view, calm tones, 16:9 thumbnail composition\n```", nil
		}
	}}

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName:        "Calm Channel",
		ChannelDescription: "Relaxation sounds",
		VideoTopic:         "ocean waves for sleep",
	})
	s.Require().NoError(err)

	s.Equal("Peaceful Ocean Waves 🌊 Deep Sleep Sounds", content.Title)
	s.Equal("OCEAN CALM", content.ThumbnailText)
	s.Equal([]string{"oceanwaves", "sleepsounds", "deeprelaxation"}, content.Tags)
	s.Len(content.ImagePrompts, 3)
	s.Contains(content.ImagePrompts[0], "cinematic ocean at dusk")
}

func (s *GeneratorSuite) TestTitleRetriesWithHigherTemperature() {
	var temps []float64
	provider := &stubProvider{fn: func(prompt string, temperature float64) (string, error) {
		if strings.Contains(prompt, "OPTIMIZED TITLE") {
			temps = append(temps, temperature)
			if len(temps) < 3 {
				return respond("Relaxing Rain Sounds", "RAIN"), nil
			}
			return respond("Gentle Rain Sounds", "RAIN"), nil
		}
		return `{"tags": ["rainsounds"]}`, nil
	}}

	// Two prior titles starting with "relaxing" make that opener non-diverse.
	s.tracker.RecordTitle("Relaxing Piano")
	s.tracker.RecordTitle("Relaxing Guitar")

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "rain sounds",
	})
	s.Require().NoError(err)

	s.Equal("Gentle Rain Sounds", content.Title)
	s.Require().Len(temps, 3)
	s.InDelta(0.9, temps[0], 1e-9)
	s.InDelta(0.95, temps[1], 1e-9)
	s.InDelta(1.0, temps[2], 1e-9)
}

func (s *GeneratorSuite) TestTitleInstructionRecomputedPerAttempt() {
	var titlePrompts []string
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		if strings.Contains(prompt, "OPTIMIZED TITLE") {
			titlePrompts = append(titlePrompts, prompt)
			if len(titlePrompts) == 1 {
				// Another variation records titles on the shared tracker
				// while this attempt is in flight.
				s.tracker.RecordTitle("Morning Forest Walk")
				s.tracker.RecordTitle("Morning Rain Sounds")
				return respond("Relaxing Lake Sounds", "LAKE"), nil
			}
			return respond("Gentle Lake Sounds", "LAKE"), nil
		}
		return `{"tags": ["lakesounds"]}`, nil
	}}

	s.tracker.RecordTitle("Relaxing Piano")
	s.tracker.RecordTitle("Relaxing Guitar")

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "lake sounds",
	})
	s.Require().NoError(err)
	s.Equal("Gentle Lake Sounds", content.Title)

	s.Require().Len(titlePrompts, 2)
	// Two history entries are below the instruction threshold, so the first
	// attempt carries no avoid-list. The retry must pick up the words that
	// became overused between attempts.
	s.NotContains(titlePrompts[0], "DIVERSITY REQUIREMENT")
	s.Contains(titlePrompts[1], "DIVERSITY REQUIREMENT")
	s.Contains(titlePrompts[1], "morning")
	s.Contains(titlePrompts[1], "relaxing")
}

func (s *GeneratorSuite) TestDeterministicFallbacksWhenNeverDiverse() {
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		if strings.Contains(prompt, "OPTIMIZED TITLE") {
			return respond("Relaxing Sunset View", "SUNSET"), nil
		}
		return "", fmt.Errorf("provider down")
	}}

	s.tracker.RecordTitle("Relaxing Piano")
	s.tracker.RecordTitle("Relaxing Guitar")

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName:        "Calm Channel",
		ChannelDescription: "Relaxation sounds",
		VideoTopic:         "sunset timelapse",
	})
	s.Require().NoError(err)

	s.Equal("sunset timelapse | Calm Channel", content.Title)
	s.Equal("WATCH NOW", content.ThumbnailText)
	s.Contains(content.Description, "Discover amazing content about sunset timelapse on Calm Channel!")
	// Fallback tags lead with the squashed channel name and topic words.
	s.Equal("calmchannel", content.Tags[0])
	s.Contains(content.Tags, "sunset")
	s.Contains(content.Tags, "timelapse")
	s.Len(content.ImagePrompts, 3)
}

func (s *GeneratorSuite) TestSingleShotFallback() {
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		if strings.Contains(prompt, "OPTIMIZED TITLE") {
			return "", fmt.Errorf("quota exceeded")
		}
		return "```json\n{\"title\": \"Morning Forest Walk\", \"description\": \"Step into the woods.\", \"tags\": [\"forestwalk\", \"naturesounds\"], \"thumbnail_text\": \"FOREST\", \"image_prompts\": [\"misty forest path, 16:9\"]}\n```", nil
	}}

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "forest walk",
	})
	s.Require().NoError(err)

	s.Equal("Morning Forest Walk", content.Title)
	s.Equal("FOREST", content.ThumbnailText)
	s.Equal([]string{"forestwalk", "naturesounds"}, content.Tags)
	s.Len(content.ImagePrompts, 3)
	// Single-shot titles feed the diversity history too.
	s.Contains(s.tracker.TitleHistory(), "morning")
}

func (s *GeneratorSuite) TestGenerateFailsWhenEverythingIsDown() {
	provider := &stubProvider{fn: func(string, float64) (string, error) {
		return "", fmt.Errorf("unreachable")
	}}

	_, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "anything",
	})
	s.Error(err)
}

func (s *GeneratorSuite) TestTitleLengthCapped() {
	long := strings.Repeat("verylongword ", 20)
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		if strings.Contains(prompt, "OPTIMIZED TITLE") {
			return respond(long, "LONG"), nil
		}
		return `{"tags": ["something"]}`, nil
	}}

	content, err := s.newGenerator(provider).Generate(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "long titles",
	})
	s.Require().NoError(err)
	s.LessOrEqual(len([]rune(content.Title)), 100)
}

func (s *GeneratorSuite) TestVariationsCollectPartialSuccesses() {
	var calls atomic.Int32
	provider := &stubProvider{fn: func(prompt string, _ float64) (string, error) {
		switch {
		case strings.Contains(prompt, "quick_guide"):
			return "", fmt.Errorf("provider hiccup")
		case strings.Contains(prompt, "OPTIMIZED TITLE"):
			n := calls.Add(1)
			return respond(fmt.Sprintf("Take%d On The Topic", n), "TAKE"), nil
		default:
			return `{"tags": ["topictag"]}`, nil
		}
	}}

	results := s.newGenerator(provider).Variations(context.Background(), &domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "variations",
	}, 3)

	// The quick_guide variation fails both staged and single-shot paths and
	// is dropped; the rest survive.
	s.Len(results, 2)
}

func (s *GeneratorSuite) TestFallbackTags() {
	tags := FallbackTags(&domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "relaxing piano music for the night",
	}, "Relaxing Piano Music")

	s.Equal("calmchannel", tags[0])
	s.Contains(tags, "relaxing")
	s.Contains(tags, "piano")
	s.NotContains(tags, "the")
	s.NotContains(tags, "for")
	s.LessOrEqual(len(tags), 12)

	// Deterministic for identical input.
	s.Equal(tags, FallbackTags(&domain.InputData{
		ChannelName: "Calm Channel",
		VideoTopic:  "relaxing piano music for the night",
	}, "Relaxing Piano Music"))
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

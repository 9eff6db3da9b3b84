package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTitleResponseMarkers(t *testing.T) {
	title, thumb := parseTitleResponse("🎯 **OPTIMIZED TITLE:**\nDeep Sleep Rain 🌧️\n🖼️ **THUMBNAIL TEXT:**\nSLEEP NOW")
	assert.Equal(t, "Deep Sleep Rain 🌧️", title)
	assert.Equal(t, "SLEEP NOW", thumb)
}

func TestParseTitleResponseInlineMarker(t *testing.T) {
	// Marker and value on a single final line.
	title, thumb := parseTitleResponse("**OPTIMIZED TITLE:** Calm Night Piano")
	assert.Equal(t, "Calm Night Piano", title)
	assert.Equal(t, "ENGAGING", thumb)
}

func TestParseTitleResponseEmojiFallback(t *testing.T) {
	title, thumb := parseTitleResponse("🎯 Midnight Ocean Ambience 🖼️ OCEAN")
	assert.Equal(t, "Midnight Ocean Ambience", title)
	assert.Equal(t, "OCEAN", thumb)
}

func TestParseTitleResponseUnstructured(t *testing.T) {
	title, thumb := parseTitleResponse("Just a plain suggestion without any format")
	assert.Equal(t, "Just a plain suggestion without any format", title)
	assert.Equal(t, "ENGAGING", thumb)
}

func TestParseTagsResponseVariants(t *testing.T) {
	cases := map[string]string{
		"bare array":      `["rain", "sleep"]`,
		"tags object":     `{"tags": ["rain", "sleep"]}`,
		"fenced json":     "```json\n{\"tags\": [\"rain\", \"sleep\"]}\n```",
		"embedded object": `Here you go: {"tags": ["rain", "sleep"]} enjoy!`,
		"embedded array":  `The tags are ["rain", "sleep"] as requested.`,
	}
	for name, input := range cases {
		assert.Equal(t, []string{"rain", "sleep"}, parseTagsResponse(input), name)
	}
}

func TestParseTagsResponseScrapesLines(t *testing.T) {
	got := parseTagsResponse("1. Rain Sounds\n- deep-sleep\n* skipped bullet\n# skipped header\nok")
	assert.Equal(t, []string{"RainSounds", "deepsleep"}, got)
}

func TestCleanTags(t *testing.T) {
	got := cleanTags([]string{
		"Relaxing Music!", "  piano  ", "relaxing-music", "x",
		"2024", "youtube", "the", "piano",
	})
	// "relaxing-music" collapses to the same compound as "Relaxing Music!".
	assert.Equal(t, []string{"relaxingmusic", "piano"}, got)

	// Cleaning is idempotent: cleaned output survives a second pass intact.
	assert.Equal(t, got, cleanTags(got))
}

func TestCleanTagsCaps(t *testing.T) {
	var tags []string
	for i := 0; i < 30; i++ {
		tags = append(tags, "tagless"+string(rune('a'+i)))
	}
	// "tag" prefix is rejected outright.
	assert.Empty(t, cleanTags(tags))

	tags = tags[:0]
	for i := 0; i < 30; i++ {
		tags = append(tags, "calm"+string(rune('a'+i)))
	}
	assert.Len(t, cleanTags(tags), 15)
}

func TestParseImagePromptsCodeBlocks(t *testing.T) {
	response := "```\nfirst cinematic prompt\n```\nsome chatter\n```json\n{\"ignored\": true}\n```\n```\nsecond cinematic prompt\n```"
	got := parseImagePrompts(response, "Calm Night")
	assert.Len(t, got, 3)
	assert.Equal(t, "first cinematic prompt", got[0])
	assert.Equal(t, "second cinematic prompt", got[1])
	assert.Contains(t, got[2], "cinematic calm night")
}

func TestParseImagePromptsLongLines(t *testing.T) {
	response := "PROMPT 1: skipped label line\nshort\n" +
		"a sweeping mountain vista at golden hour, dramatic clouds, wide 16:9 framing with negative space\n"
	got := parseImagePrompts(response, "Mountains")
	assert.Len(t, got, 3)
	assert.Contains(t, got[0], "sweeping mountain vista")
}

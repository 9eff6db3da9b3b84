package ai

import (
	"fmt"
	"strings"
)

// Built-in prompt templates. External prompt files can override these through
// PromptSet; the built-ins keep the generator functional with zero setup.

const titleSystemPrompt = `You are an expert YouTube SEO strategist specializing in titles and thumbnail text.
Craft titles that maximize click-through rate while staying honest to the content.

Rules:
- Title: 60-70 characters, primary keyword first, emotionally engaging, emoji where it fits
- Thumbnail text: 2-3 punchy words for an image overlay, ALL CAPS

Respond in exactly this format:
🎯 **OPTIMIZED TITLE:**
[your title]
🖼️ **THUMBNAIL TEXT:**
[your overlay words]`

const descriptionSystemPrompt = `You are an expert YouTube description writer.
Write a complete, SEO-optimized video description.

Requirements:
- Engaging hook within the first 125 characters
- Detailed but scannable body with line breaks
- Call-to-action (subscribe, like, comment)
- Relevant hashtags at the end
- 800-1500 characters total`

const tagsSystemPrompt = `You are a YouTube tags optimization specialist.
Create 10-15 searchable tags mixing primary, secondary, and long-tail keywords.

Rules:
- No punctuation inside tags
- No repetitive patterns across tags
- Every tag must be relevant and searchable

Return the tags as JSON:
{"tags": ["tag1", "tag2", "tag3"]}`

const imagePromptsSystemPrompt = `You are ThumbnailCraft-Pro, a specialist in AI image generation prompts for YouTube thumbnails.
Create 3 separate, detailed prompts. Each prompt must be cinematic, describe a 16:9 composition, and leave negative space for text overlay.

Return each prompt in its own fenced code block.`

// PromptSet holds the four stage templates. Zero-value fields fall back to
// the built-in templates above.
type PromptSet struct {
	Title        string
	Description  string
	Tags         string
	ImagePrompts string
}

func (p PromptSet) title() string {
	if p.Title != "" {
		return p.Title
	}
	return titleSystemPrompt
}

func (p PromptSet) description() string {
	if p.Description != "" {
		return p.Description
	}
	return descriptionSystemPrompt
}

func (p PromptSet) tags() string {
	if p.Tags != "" {
		return p.Tags
	}
	return tagsSystemPrompt
}

func (p PromptSet) imagePrompts() string {
	if p.ImagePrompts != "" {
		return p.ImagePrompts
	}
	return imagePromptsSystemPrompt
}

func buildTitlePrompt(set PromptSet, channelName, channelDescription, topic, imageContext string) string {
	if imageContext == "" {
		imageContext = "No image provided"
	}
	return fmt.Sprintf(`%s

**Input**:
- Channel Name: %s
- Channel Description: %s
- Video Topic: %s
- Video Image: %s

Analyze the input and respond with the optimized title and thumbnail text following the format specified above.`,
		set.title(), channelName, channelDescription, topic, imageContext)
}

func buildDescriptionPrompt(set PromptSet, title, channelContext string) string {
	return fmt.Sprintf(`%s

Video Title: %s
Channel Context: %s

Generate a complete YouTube description following the framework specified above.`,
		set.description(), title, channelContext)
}

func buildTagsPrompt(set PromptSet, title, description, channelContext string) string {
	return fmt.Sprintf(`%s

**Video Information:**
- Title: %s
- Description: %s...
- Channel Context: %s

**Analysis Required:**
- Extract main keywords from title
- Identify content category and target audience
- Apply YouTube algorithm optimization
- Ensure tag diversity and avoid repetition

Generate optimized YouTube tags following the guidelines above.`,
		set.tags(), title, truncate(description, 500), channelContext)
}

func buildImagePromptsPrompt(set PromptSet, title string, keywords []string) string {
	return fmt.Sprintf(`%s

VIDEO_TITLE: %s
KEYWORDS: %s

Generate 3 separate prompts following the specifications above.`,
		set.imagePrompts(), title, strings.Join(keywords, ", "))
}

// buildIntegratedPrompt asks for the whole content package in one JSON
// response. Used as the fallback path when the staged pipeline fails.
func buildIntegratedPrompt(channelName, channelDescription, topic, additionalContext string) string {
	return fmt.Sprintf(`You are an expert YouTube content creator. Using the best practices from professional YouTube SEO and content creation, generate comprehensive content for a YouTube video.

**Channel Information:**
- Channel Name: %s
- Channel Description: %s
- Content Style: Professional, engaging, SEO-optimized

**Video Topic:** %s

**Additional Context:** %s

**Requirements:**
Generate a complete content package including:

1. **TITLE** (60-70 characters): SEO optimized, primary keyword first, emotionally engaging
2. **DESCRIPTION** (800-1500 characters): hook within first 125 characters, call-to-action, keyword integration
3. **TAGS** (10-15 tags): mix of broad and specific keywords
4. **THUMBNAIL_TEXT** (2-3 words): high-impact overlay text
5. **IMAGE_PROMPTS** (3 prompts): detailed prompts for AI image generation, 16:9 thumbnail format

**Output Format (JSON):**
`+"```json"+`
{
    "title": "Your optimized title here",
    "description": "Your complete description here",
    "tags": ["tag1", "tag2", "tag3"],
    "thumbnail_text": "POWER WORDS",
    "image_prompts": ["Detailed prompt 1", "Detailed prompt 2", "Detailed prompt 3"]
}
`+"```"+`

Focus on creating content that perfectly matches the channel's niche and audience expectations while maximizing discoverability and engagement.`,
		channelName, channelDescription, topic, additionalContext)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

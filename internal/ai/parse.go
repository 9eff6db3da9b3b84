package ai

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

const (
	titleMarker     = "**OPTIMIZED TITLE:**"
	thumbnailMarker = "**THUMBNAIL TEXT:**"

	defaultThumbnailText = "ENGAGING"
)

// parseTitleResponse extracts the title and thumbnail text from a structured
// response. It first looks for the explicit markers, then falls back to the
// emoji section delimiters the models sometimes emit instead.
func parseTitleResponse(response string) (title, thumbnail string) {
	lines := strings.Split(response, "\n")
	for i, line := range lines {
		switch {
		case strings.Contains(line, titleMarker):
			if i+1 < len(lines) {
				title = strings.TrimSpace(lines[i+1])
			} else {
				title = strings.TrimSpace(afterMarker(line, titleMarker))
			}
		case strings.Contains(line, thumbnailMarker):
			if i+1 < len(lines) {
				thumbnail = strings.TrimSpace(lines[i+1])
			} else {
				thumbnail = strings.TrimSpace(afterMarker(line, thumbnailMarker))
			}
		}
	}

	if title == "" {
		if strings.Contains(response, "🎯") {
			section := strings.SplitN(response, "🎯", 2)[1]
			section = strings.SplitN(section, "🖼️", 2)[0]
			title = section
		} else {
			title = truncate(response, 100)
		}
		title = strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(title), titleMarker, ""))
	}

	if thumbnail == "" {
		if strings.Contains(response, "🖼️") {
			parts := strings.Split(response, "🖼️")
			thumbnail = parts[len(parts)-1]
		} else {
			thumbnail = defaultThumbnailText
		}
		thumbnail = strings.TrimSpace(strings.ReplaceAll(thumbnail, thumbnailMarker, ""))
	}

	return title, thumbnail
}

func afterMarker(line, marker string) string {
	parts := strings.Split(line, marker)
	return parts[len(parts)-1]
}

var (
	tagsObjectPattern = regexp.MustCompile(`(?s)\{[^}]*"tags":\s*\[[^\]]+\][^}]*\}`)
	arrayPattern      = regexp.MustCompile(`(?s)\[([^\]]+)\]`)
	leadingJunk       = regexp.MustCompile(`^["'\-\*\d\.\s]+`)
	trailingJunk      = regexp.MustCompile(`["',\.\s]*$`)
)

// parseTagsResponse extracts a tag list from an AI response, trying
// progressively looser interpretations: whole-body JSON, an embedded
// {"tags": [...]} object, any bracketed array, and finally line-by-line
// scraping of plain text output.
func parseTagsResponse(response string) []string {
	if tags := parseTagsJSON(response); tags != nil {
		return tags
	}

	if m := tagsObjectPattern.FindString(response); m != "" {
		var obj struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(m), &obj); err == nil && len(obj.Tags) > 0 {
			return obj.Tags
		}
	}

	if m := arrayPattern.FindString(response); m != "" {
		var arr []string
		if err := json.Unmarshal([]byte(m), &arr); err == nil && len(arr) > 0 {
			return arr
		}
	}

	return scrapeTagLines(response)
}

func parseTagsJSON(response string) []string {
	trimmed := strings.TrimSpace(cleanJSONFences(response))

	var arr []string
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		return arr
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil
	}
	if raw, ok := obj["tags"]; ok {
		var tags []string
		if err := json.Unmarshal(raw, &tags); err == nil {
			return tags
		}
	}
	for _, raw := range obj {
		var tags []string
		if err := json.Unmarshal(raw, &tags); err == nil {
			return tags
		}
	}
	return nil
}

func scrapeTagLines(response string) []string {
	var tags []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "*") {
			continue
		}
		clean := leadingJunk.ReplaceAllString(line, "")
		clean = trailingJunk.ReplaceAllString(clean, "")
		clean = stripPunctuation(clean, true)
		clean = strings.ReplaceAll(clean, " ", "")
		clean = strings.ReplaceAll(clean, "-", "")
		clean = strings.TrimSpace(clean)
		if len(clean) > 2 {
			tags = append(tags, clean)
		}
		if len(tags) == 15 {
			break
		}
	}
	return tags
}

// stripPunctuation drops ASCII punctuation. With keepJoiners set, spaces and
// hyphens survive so the caller can decide how to compound words.
func stripPunctuation(s string, keepJoiners bool) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if keepJoiners && r == '-' {
				b.WriteRune(r)
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var tagStopWords = map[string]struct{}{
	"youtube": {}, "video": {}, "content": {}, "amazing": {}, "subscribe": {},
	"like": {}, "share": {}, "comment": {}, "with": {}, "and": {}, "the": {},
	"for": {}, "of": {}, "in": {}, "to": {}, "a": {}, "an": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"must": {}, "can": {}, "tag": {}, "tags": {}, "watch": {}, "now": {},
}

// cleanTags normalizes tags into YouTube's compound single-word form:
// lowercase, punctuation stripped, spaces and hyphens squashed, stop words,
// pure numbers, and duplicates removed. Caps the result at 15.
func cleanTags(tags []string) []string {
	var cleaned []string
	seen := make(map[string]struct{}, len(tags))

	for _, tag := range tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		clean = leadingJunk.ReplaceAllString(clean, "")
		clean = trailingJunk.ReplaceAllString(clean, "")
		clean = stripPunctuation(clean, false)
		clean = strings.ReplaceAll(clean, " ", "")
		clean = strings.TrimSpace(clean)

		if len(clean) < 2 || len(clean) > 50 {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		if strings.HasPrefix(clean, "tag") {
			continue
		}
		if _, stop := tagStopWords[clean]; stop {
			continue
		}
		if isAllDigits(clean) {
			continue
		}

		seen[clean] = struct{}{}
		cleaned = append(cleaned, clean)
		if len(cleaned) == 15 {
			break
		}
	}
	return cleaned
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

var codeBlockPattern = regexp.MustCompile("(?s)```(.*?)```")

// parseImagePrompts pulls image generation prompts out of a response,
// preferring fenced code blocks and falling back to long prose lines. The
// result is padded to exactly three prompts with a generic cinematic one.
func parseImagePrompts(response, title string) []string {
	var prompts []string

	for _, m := range codeBlockPattern.FindAllStringSubmatch(response, -1) {
		block := strings.TrimSpace(m[1])
		if block != "" && !strings.HasPrefix(block, "json") {
			prompts = append(prompts, block)
		}
	}

	if len(prompts) == 0 {
		for _, line := range strings.Split(response, "\n") {
			line = strings.TrimSpace(line)
			if strings.Contains(strings.ToUpper(line), "PROMPT") && strings.Contains(line, ":") {
				continue
			}
			if len(line) > 50 {
				prompts = append(prompts, line)
			}
		}
	}

	for len(prompts) < 3 {
		prompts = append(prompts, genericImagePrompt(title))
	}
	return prompts[:3]
}

func genericImagePrompt(title string) string {
	return "cinematic " + strings.ToLower(title) + ", professional lighting, 16:9 composition, negative space for text overlay, high quality photography --ar 16:9 --v 7"
}

func fallbackImagePrompts(title string) []string {
	return []string{
		"cinematic scene related to " + title + ", professional lighting, shallow depth of field, 16:9 aspect ratio --ar 16:9 --v 7",
		"artistic composition for " + title + ", dramatic lighting, negative space for text, high quality --ar 16:9 --v 7",
		"professional thumbnail style for " + title + ", engaging visual, text overlay space, modern design --ar 16:9 --v 7",
	}
}

// cleanJSONFences strips a markdown code fence wrapper so the body can be
// fed straight to the JSON decoder.
func cleanJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSONObject returns the outermost {...} span of a response, for
// models that wrap JSON in commentary.
func extractJSONObject(s string) string {
	return jsonObjectPattern.FindString(s)
}

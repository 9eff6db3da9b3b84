package domain

import (
	"fmt"
	"time"
)

// Status tracks where a content package is in its lifecycle.
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusGeneratingContent Status = "generating_content"
	StatusGenerated         Status = "generated"
	StatusUploaded          Status = "uploaded"
	StatusPublished         Status = "published"
	StatusFailed            Status = "failed"
)

// Terminal reports whether the status is an end state. Terminal packages are
// eligible for cleanup sweeps; non-terminal packages never are.
func (s Status) Terminal() bool {
	return s == StatusGenerated || s == StatusPublished || s == StatusFailed
}

// InputData is a single content request. Either ChannelID resolves through the
// registry, or ChannelName+ChannelDescription identify an ad-hoc channel.
type InputData struct {
	ChannelID          string    `json:"channel_id,omitempty"`
	ChannelName        string    `json:"channel_name,omitempty"`
	ChannelDescription string    `json:"channel_description,omitempty"`
	VideoTopic         string    `json:"video_topic,omitempty"`
	VideoFrameFile     string    `json:"video_frame_file,omitempty"`
	VideoFrameURL      string    `json:"video_frame_url,omitempty"`
	AdditionalContext  string    `json:"additional_context,omitempty"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// AdHoc reports whether the request self-identifies a channel not present in
// the registry.
func (in *InputData) AdHoc() bool {
	return in.ChannelName != "" && in.ChannelDescription != ""
}

// GeneratedContent holds the AI-produced metadata for one video.
type GeneratedContent struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	ThumbnailText string   `json:"thumbnail_text"`
	ImagePrompts  []string `json:"image_prompts"`
}

// GeneratedImages holds the output of the image stage. SelectedURL may be set
// later by a user picking one of the batch URLs.
type GeneratedImages struct {
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	BatchURLs    []string `json:"batch_urls,omitempty"`
	SelectedURL  string   `json:"selected_url,omitempty"`
	Prompts      []string `json:"prompts,omitempty"`
}

// DisplayURLs returns the URL string persisted to sinks: the full batch joined
// with " | ", or the single thumbnail URL.
func (g *GeneratedImages) DisplayURLs() string {
	if g == nil {
		return ""
	}
	if len(g.BatchURLs) > 0 {
		out := g.BatchURLs[0]
		for _, u := range g.BatchURLs[1:] {
			out += " | " + u
		}
		return out
	}
	return g.ThumbnailURL
}

// ContentPackage is one unit of work producing metadata for a single video
// request. It is owned by the engine's in-memory registry for its whole
// lifetime; mutations happen in place through the engine.
type ContentPackage struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	Input            InputData         `json:"input_data"`
	GeneratedContent *GeneratedContent `json:"generated_content,omitempty"`
	GeneratedImages  *GeneratedImages  `json:"generated_images,omitempty"`
	Status           Status            `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Logs             []string          `json:"processing_logs"`
}

// AddLog appends a timestamped entry to the package's processing log and
// bumps UpdatedAt.
func (p *ContentPackage) AddLog(message string) {
	now := time.Now()
	p.Logs = append(p.Logs, fmt.Sprintf("%s: %s", now.Format(time.RFC3339), message))
	p.UpdatedAt = now
}

// SetStatus updates the status and records the transition in the log.
func (p *ContentPackage) SetStatus(status Status) {
	p.Status = status
	p.AddLog(fmt.Sprintf("status changed to %s", status))
}

// Package frames resolves the optional video frame attached to a content
// request into image bytes: a local image file, a remote URL, or a frame
// pulled out of a local video with ffmpeg.
package frames

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"content_engine/internal/domain"
)

const maxFrameBytes = 20 << 20

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".mkv": {}, ".avi": {}, ".webm": {},
}

// Extractor turns frame references into base64 payloads for the AI provider.
type Extractor struct {
	httpClient *http.Client
	outputDir  string
	logger     *slog.Logger
}

func NewExtractor(outputDir string, logger *slog.Logger) *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		outputDir:  outputDir,
		logger:     logger.With(slog.String("component", "frame_extractor")),
	}
}

// Resolve returns the request's frame as a base64 string, or "" when the
// request carries no frame. Local files win over URLs when both are set.
// Video files get a middle frame extracted first.
func (e *Extractor) Resolve(ctx context.Context, in *domain.InputData) (string, error) {
	switch {
	case in.VideoFrameFile != "":
		path := in.VideoFrameFile
		if isVideoFile(path) {
			framePath, err := e.ExtractFrame(ctx, path, -1)
			if err != nil {
				return "", fmt.Errorf("extract frame from video: %w", err)
			}
			path = framePath
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read frame file: %w", err)
		}
		return base64.StdEncoding.EncodeToString(data), nil

	case in.VideoFrameURL != "":
		data, err := e.fetch(ctx, in.VideoFrameURL)
		if err != nil {
			return "", fmt.Errorf("fetch frame url: %w", err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}
	return "", nil
}

func isVideoFile(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (e *Extractor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// ExtractFrame pulls a single frame out of a local video at the given
// timestamp in seconds. A negative timestamp means the middle of the video; a
// timestamp past the end is clamped to 80% of the duration.
func (e *Extractor) ExtractFrame(ctx context.Context, videoPath string, timestamp float64) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}

	duration, err := probeDuration(ctx, videoPath)
	if err != nil {
		return "", fmt.Errorf("probe duration: %w", err)
	}
	if timestamp < 0 {
		timestamp = duration / 2
	} else if timestamp > duration {
		timestamp = duration * 0.8
	}

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outPath := filepath.Join(e.outputDir, fmt.Sprintf("frame_%s_%s.jpg",
		time.Now().Format("20060102_150405"), uuid.NewString()[:8]))

	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg extract: %w: %s", err, string(out))
	}

	e.logger.Info("extracted video frame",
		slog.String("video", videoPath),
		slog.Float64("timestamp", timestamp),
		slog.String("frame", outPath),
	)
	return outPath, nil
}

func probeDuration(ctx context.Context, videoPath string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// Package images generates thumbnail images from text prompts through the
// Piapi Midjourney API: one submit call, then bounded polling until the task
// completes.
package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds Piapi client configuration.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

// Client talks to the Piapi task API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       logger.With(slog.String("component", "piapi")),
	}
}

type submitRequest struct {
	Model    string      `json:"model"`
	TaskType string      `json:"task_type"`
	Input    submitInput `json:"input"`
}

type submitInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ProcessMode string `json:"process_mode"`
}

type taskEnvelope struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    *taskData `json:"data"`
	TaskID  string    `json:"task_id"`
	ID      string    `json:"id"`
	Status  string    `json:"status"`
}

type taskData struct {
	TaskID string      `json:"task_id"`
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Output *taskOutput `json:"output"`
	Error  *taskError  `json:"error"`
}

type taskOutput struct {
	ImageURLs          []string `json:"image_urls"`
	TemporaryImageURLs []string `json:"temporary_image_urls"`
	ImageURL           string   `json:"image_url"`
}

type taskError struct {
	Message    string `json:"message"`
	RawMessage string `json:"raw_message"`
}

// Generate submits an imagine task for the prompt and polls until the task
// completes, returning up to four image URLs. The prompt gets the Midjourney
// version and aspect flags appended.
func (c *Client) Generate(ctx context.Context, prompt string) ([]string, error) {
	taskID, err := c.submit(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("submit task: %w", err)
	}

	c.logger.Info("midjourney task started", slog.String("task_id", taskID))
	return c.poll(ctx, taskID)
}

func (c *Client) submit(ctx context.Context, prompt string) (string, error) {
	body := submitRequest{
		Model:    "midjourney",
		TaskType: "imagine",
		Input: submitInput{
			Prompt:      prompt + " --v 7 --ar 16:9",
			AspectRatio: "16:9",
			ProcessMode: "turbo",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/task", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	taskID := env.taskID()
	if taskID == "" {
		return "", fmt.Errorf("no task id in response")
	}
	return taskID, nil
}

func (e *taskEnvelope) taskID() string {
	if e.Data != nil {
		if e.Data.TaskID != "" {
			return e.Data.TaskID
		}
		if e.Data.ID != "" {
			return e.Data.ID
		}
	}
	if e.TaskID != "" {
		return e.TaskID
	}
	return e.ID
}

func (c *Client) poll(ctx context.Context, taskID string) ([]string, error) {
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		env, err := c.fetchTask(ctx, taskID)
		if err != nil {
			return nil, err
		}

		data := env.Data
		if data == nil {
			data = &taskData{Status: env.Status}
		}

		c.logger.Debug("midjourney task status",
			slog.String("task_id", taskID),
			slog.String("status", data.Status),
			slog.Int("attempt", attempt),
		)

		switch data.Status {
		case "completed":
			return extractURLs(data.Output)
		case "failed":
			msg := "Unknown error"
			if data.Error != nil {
				if data.Error.Message != "" {
					msg = data.Error.Message
				} else if data.Error.RawMessage != "" {
					msg = data.Error.RawMessage
				}
			}
			return nil, fmt.Errorf("midjourney generation failed: %s", msg)
		case "processing", "pending", "queued", "running", "started":
			continue
		case "":
			if env.Code != 0 && env.Code != 200 {
				return nil, fmt.Errorf("piapi api error: %s", env.Message)
			}
			continue
		default:
			c.logger.Warn("unknown task status, continuing",
				slog.String("task_id", taskID),
				slog.String("status", data.Status),
			)
			continue
		}
	}

	return nil, fmt.Errorf("midjourney generation timed out after %d polls", c.maxPolls)
}

func (c *Client) fetchTask(ctx context.Context, taskID string) (*taskEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/task/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var env taskEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

// extractURLs picks the best URL list the task output offers: the four
// distinct Midjourney URLs, the processed temporary URLs, or a single URL.
func extractURLs(output *taskOutput) ([]string, error) {
	if output == nil {
		return nil, fmt.Errorf("completed task has no output")
	}

	var raw []string
	switch {
	case len(output.ImageURLs) > 0:
		raw = output.ImageURLs
	case len(output.TemporaryImageURLs) > 0:
		raw = output.TemporaryImageURLs
	case output.ImageURL != "":
		raw = []string{output.ImageURL}
	}

	var valid []string
	for _, u := range raw {
		if strings.HasPrefix(u, "http") {
			valid = append(valid, u)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("completed task has no valid image urls")
	}
	return valid, nil
}

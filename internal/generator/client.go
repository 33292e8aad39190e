// Package generator is the HTTP client for the external image-generation API.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// ErrUpstream is returned for non-2xx responses from the generator.
var ErrUpstream = errors.New("generator returned an error")

const maxErrorBody = 512

type generateRequest struct {
	RoomImage    string `json:"roomImage"`
	PatternImage string `json:"patternImage,omitempty"`
	Mode         string `json:"mode"`
	Prompt       string `json:"prompt"`
}

type generateResponse struct {
	ArtifactURL string `json:"artifactUrl"`
	ImageURL    string `json:"imageUrl"`
	Error       string `json:"error"`
}

// Client calls the generator at a single endpoint. Deadlines come from the
// caller's context.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a generator client.
func NewClient(endpoint, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient, logger: logger}
}

// Generate submits one edit and returns the URL of the resulting image.
func (c *Client) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body, err := json.Marshal(generateRequest{
		RoomImage:    req.RoomImage,
		PatternImage: req.PatternImage,
		Mode:         string(req.Mode),
		Prompt:       BuildPrompt(req.Mode, req.Instructions),
	})
	if err != nil {
		return "", fmt.Errorf("marshal generator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Generator returned non-2xx",
			zap.Int("status", resp.StatusCode), zap.String("body", string(snippet)))
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generator response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUpstream, out.Error)
	}
	if out.ArtifactURL != "" {
		return out.ArtifactURL, nil
	}
	return out.ImageURL, nil
}

var modePrompts = map[models.GenerationMode]string{
	models.ModeCurtains:  "Replace the curtains in the room photo with curtains made from the provided fabric sample.",
	models.ModeWallpaper: "Cover the walls in the room photo with wallpaper using the provided pattern.",
	models.ModeCarpet:    "Replace the floor covering in the room photo with a carpet made from the provided material.",
	models.ModeFurniture: "Reupholster the main furniture in the room photo with the provided fabric.",
	models.ModeWallPaint: "Repaint the walls in the room photo in the colour of the provided sample.",
}

// BuildPrompt returns the instruction text sent for mode, with the user's
// own instructions appended.
func BuildPrompt(mode models.GenerationMode, instructions string) string {
	prompt := modePrompts[mode]
	prompt += " Keep the lighting, perspective and every other object unchanged."
	if extra := strings.TrimSpace(instructions); extra != "" {
		prompt += " Additional instructions: " + extra
	}
	return prompt
}

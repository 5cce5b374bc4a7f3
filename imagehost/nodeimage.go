// Package imagehost uploads reference images to a public host so URL-only providers can fetch them.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultUploadURL = "https://api.nodeimage.com/api/upload"
	defaultDeleteURL = "https://api.nodeimage.com/api/v1/delete/"
)

// Hosted identifies an uploaded image.
type Hosted struct {
	ID  string
	URL string
}

// Config configures the NodeImage client.
type Config struct {
	APIKey    string        `yaml:"api_key" json:"api_key"`
	UploadURL string        `yaml:"upload_url" json:"upload_url"`
	DeleteURL string        `yaml:"delete_url" json:"delete_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig points at the public NodeImage API.
func DefaultConfig() Config {
	return Config{
		UploadURL: defaultUploadURL,
		DeleteURL: defaultDeleteURL,
		Timeout:   30 * time.Second,
	}
}

// NodeImageClient handles communication with the NodeImage API.
type NodeImageClient struct {
	APIKey    string
	UploadURL string
	DeleteURL string
	Client    *http.Client
}

// NewNodeImageClient creates a new NodeImage client.
func NewNodeImageClient(cfg Config) *NodeImageClient {
	c := &NodeImageClient{
		APIKey:    cfg.APIKey,
		UploadURL: cfg.UploadURL,
		DeleteURL: cfg.DeleteURL,
		Client:    &http.Client{Timeout: cfg.Timeout},
	}
	if c.UploadURL == "" {
		c.UploadURL = defaultUploadURL
	}
	if c.DeleteURL == "" {
		c.DeleteURL = defaultDeleteURL
	}
	return c
}

// UploadResponse matches the structure of the successful upload response.
type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ImageID string `json:"image_id"`
	Links   struct {
		Direct string `json:"direct"`
	} `json:"links"`
}

// DeleteResponse matches the structure of the successful delete response.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Upload sends imageBytes as a multipart form and returns the direct link.
func (c *NodeImageClient) Upload(ctx context.Context, imageBytes []byte, filename string) (*Hosted, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("nodeimage: failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageBytes)); err != nil {
		return nil, fmt.Errorf("nodeimage: failed to copy image bytes to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("nodeimage: failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("nodeimage: failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nodeimage: failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("nodeimage: API returned non-200 status: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var uploadResp UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return nil, fmt.Errorf("nodeimage: failed to decode upload response: %w", err)
	}
	if !uploadResp.Success {
		return nil, fmt.Errorf("nodeimage: API reported an error: %s", uploadResp.Message)
	}
	if uploadResp.Links.Direct == "" {
		return nil, fmt.Errorf("nodeimage: upload response has no direct link")
	}

	return &Hosted{ID: uploadResp.ImageID, URL: uploadResp.Links.Direct}, nil
}

// Delete removes a previously uploaded image.
func (c *NodeImageClient) Delete(ctx context.Context, imageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.DeleteURL+imageID, nil)
	if err != nil {
		return fmt.Errorf("nodeimage: failed to create delete request: %w", err)
	}
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("nodeimage: failed to execute delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("nodeimage: API returned non-200 status for delete: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var deleteResp DeleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&deleteResp); err != nil {
		return fmt.Errorf("nodeimage: failed to decode delete response: %w", err)
	}
	if !deleteResp.Success {
		return fmt.Errorf("nodeimage: API reported an error on delete: %s", deleteResp.Message)
	}
	return nil
}

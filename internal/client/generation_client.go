package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/makeasinger/fxgateway/internal/config"
)

const (
	vendorErrorBodyLimit = 300
	defaultMaxMediaMB    = 20
)

// Generator defines the operations the background worker needs from the vendor
type Generator interface {
	Generate(ctx context.Context, endpoint string, payload interface{}) (*GenerationResponse, error)
	FetchMedia(ctx context.Context, url string) (*Media, error)
	IsConfigured() bool
}

// GenerationClient talks to the generative-media vendor
type GenerationClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	authScheme string
	maxMedia   int64
}

// GenerationResponse is a successful raw vendor response
type GenerationResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Media is a downloaded source or produced artifact
type Media struct {
	Data        []byte
	ContentType string
}

// DataURL encodes the media as a self-contained data URL
func (m *Media) DataURL() string {
	return EncodeDataURL(m.ContentType, m.Data)
}

// VendorError is returned when the vendor answers with a non-success status
type VendorError struct {
	StatusCode int
	Body       string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("generation vendor error (status %d): %s", e.StatusCode, e.Body)
}

// NewGenerationClient creates a new vendor client
func NewGenerationClient(cfg *config.VendorConfig) *GenerationClient {
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}
	maxMediaMB := cfg.MaxMediaMB
	if maxMediaMB <= 0 {
		maxMediaMB = defaultMaxMediaMB
	}
	return &GenerationClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		authScheme: scheme,
		maxMedia:   int64(maxMediaMB) * 1024 * 1024,
	}
}

// Generate posts a JSON payload to a vendor endpoint and returns the raw response
func (c *GenerationClient) Generate(ctx context.Context, endpoint string, payload interface{}) (*GenerationResponse, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, image/*, video/*")
	req.Header.Set("Authorization", c.authScheme+" "+c.apiKey)

	log.Printf("[Vendor API] → %s %s", req.Method, url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Vendor API] ✗ %s %s — request failed: %v", req.Method, url, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Vendor API] ✗ %s %s — failed to read response: %v", req.Method, url, err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	log.Printf("[Vendor API] ← %d %s %s — %s, %d bytes", resp.StatusCode, req.Method, url, contentType, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &VendorError{
			StatusCode: resp.StatusCode,
			Body:       Truncate(string(respBody), vendorErrorBodyLimit),
		}
	}

	return &GenerationResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        respBody,
	}, nil
}

// FetchMedia downloads a source image or video, bounded by the configured size
func (c *GenerationClient) FetchMedia(ctx context.Context, url string) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch source media (status %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMedia+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read source media: %w", err)
	}
	if int64(len(data)) > c.maxMedia {
		return nil, fmt.Errorf("source media exceeds %d MB limit", c.maxMedia/(1024*1024))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("source media is empty")
	}

	contentType := DetectContentType(resp.Header.Get("Content-Type"), data)
	if !IsMediaType(contentType) {
		return nil, fmt.Errorf("source media is not an image or video (%s)", contentType)
	}

	log.Printf("[Vendor API] fetched source %s — %s, %d bytes", url, contentType, len(data))
	return &Media{Data: data, ContentType: contentType}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *GenerationClient) IsConfigured() bool {
	return c.apiKey != ""
}

// DetectContentType trusts a specific declared media type and sniffs the bytes otherwise
func DetectContentType(declared string, data []byte) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if IsMediaType(mediaType) {
		return mediaType
	}
	detected := mimetype.Detect(data)
	return strings.Split(detected.String(), ";")[0]
}

// IsMediaType reports whether contentType names an image or video
func IsMediaType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/")
}

// ExtensionFor returns a file extension for the media type, including the dot
func ExtensionFor(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ".bin"
}

// EncodeDataURL inlines data as a base64 data URL
func EncodeDataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Truncate returns at most limit bytes of s, cut on a rune boundary
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// Package azure talks to the Azure Speech REST endpoints for short-audio
// recognition, pronunciation assessment and neural voice synthesis.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	userAgent       = "kaiwa"
	recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"
	synthesisPath   = "/cognitiveservices/v1"
)

// Config holds configuration for the Azure Speech adapters
//
// Required fields:
// - Key: the speech resource subscription key
// - Region or Endpoint: where the resource lives
type Config struct {
	Key      string        // Required
	Region   string        // Required unless Endpoint is set, e.g. "westeurope"
	Endpoint string        // Optional: replaces both regional hosts
	Timeout  time.Duration // Optional: HTTP timeout, defaults to 30s
}

// Client is the shared HTTP client behind the recognizer, assessor and synthesizer.
type Client struct {
	key            string
	recognitionURL string
	synthesisURL   string
	httpClient     *http.Client
	logger         *zap.Logger
}

// ValidateConfig validates the Azure Speech configuration
func ValidateConfig(config Config) error {
	if config.Key == "" {
		return fmt.Errorf("azure speech key is required")
	}
	if config.Region == "" && config.Endpoint == "" {
		return fmt.Errorf("azure speech region or endpoint is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", config.Timeout)
	}
	return nil
}

// NewClient creates a new Azure Speech REST client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	sttBase := fmt.Sprintf("https://%s.stt.speech.microsoft.com", config.Region)
	ttsBase := fmt.Sprintf("https://%s.tts.speech.microsoft.com", config.Region)
	if config.Endpoint != "" {
		sttBase = strings.TrimRight(config.Endpoint, "/")
		ttsBase = sttBase
		logger.Info("Using custom speech endpoint", zap.String("endpoint", sttBase))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		key:            config.Key,
		recognitionURL: sttBase + recognitionPath,
		synthesisURL:   ttsBase + synthesisPath,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

// post sends body and returns the response status and payload.
func (c *Client) post(ctx context.Context, url string, body []byte, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("Sending request to Azure Speech", zap.String("url", url), zap.Int("bodySize", len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, payload, nil
}

// contentType maps a capture encoding to the header the short-audio API expects.
func contentType(encoding string, sampleRate int) string {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	switch encoding {
	case "OGG_OPUS":
		return "audio/ogg; codecs=opus"
	case "WEBM_OPUS":
		return "audio/webm; codecs=opus"
	default:
		return fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", sampleRate)
	}
}

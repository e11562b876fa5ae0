// Package external holds clients for third-party services the engine depends on.
package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coi-compliance-server/internal/domain"
)

const (
	defaultVisionBaseURL   = "https://api.anthropic.com"
	defaultVisionModel     = "claude-sonnet-4-20250514"
	defaultVisionMaxTokens = 4096
	defaultVisionTimeout   = 60 * time.Second
	visionAPIVersion       = "2023-06-01"
)

// extractionPrompt asks the model for the loosely-typed object the coercion layer accepts.
const extractionPrompt = `You are reading an Israeli certificate of insurance (אישור עריכת ביטוח).
Return a single JSON object and nothing else, with these keys when present:
certificate_number, issue_date, expiry_date, insurer_name, insured_name, insured_id,
insured_address, certificate_requester, service_codes (array of 3-digit strings),
policies (array of objects with policy_type, policy_number, coverage_limit_per_period,
coverage_limit_per_occurrence, deductible, currency, effective_date, expiration_date,
retroactive_date, endorsement_codes), additional_insured (object with name,
is_named_as_additional, waiver_of_subrogation), confidence (0 to 1).
Use dd/mm/yyyy for dates and plain numbers for amounts. Omit keys you cannot read.`

// TransientError marks a failure worth retrying: a network error, HTTP 429 or a 5xx.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient vision failure (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient vision failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// VisionClient calls a messages-style vision model to read scanned certificates.
type VisionClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewVisionClient creates a new vision model client
func NewVisionClient(config domain.VisionConfig) *VisionClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultVisionBaseURL
	}
	if config.Model == "" {
		config.Model = defaultVisionModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultVisionMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = defaultVisionTimeout
	}

	return &VisionClient{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		apiKey:    config.APIKey,
		model:     config.Model,
		maxTokens: config.MaxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type visionRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []visionMessage `json:"messages"`
}

type visionMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *blockSource `json:"source,omitempty"`
}

type blockSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type visionResponse struct {
	Content []contentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract sends the document to the model and returns the JSON object found in its reply.
func (c *VisionClient) Extract(ctx context.Context, input domain.VisionInput) (json.RawMessage, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("vision input is empty")
	}

	body, err := json.Marshal(c.buildRequest(input))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", visionAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("vision API returned status %d: %s", resp.StatusCode, truncate(string(payload), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &TransientError{StatusCode: resp.StatusCode, Err: statusErr}
		}
		return nil, statusErr
	}

	var decoded visionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("vision API error %s: %s", decoded.Error.Type, decoded.Error.Message)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	object, ok := JSONObject(text.String())
	if !ok {
		return nil, fmt.Errorf("vision reply contains no JSON object")
	}
	return object, nil
}

func (c *VisionClient) buildRequest(input domain.VisionInput) visionRequest {
	mediaType := input.MimeType
	if mediaType == "" {
		mediaType = http.DetectContentType(input.Data)
	}

	blockType := "image"
	if strings.Contains(mediaType, "pdf") {
		blockType = "document"
	}

	return visionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []visionMessage{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: blockType,
					Source: &blockSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      base64.StdEncoding.EncodeToString(input.Data),
					},
				},
				{Type: "text", Text: extractionPrompt},
			},
		}},
	}
}

// JSONObject returns the outermost JSON object embedded in a model reply, which may be
// wrapped in prose or a code fence.
func JSONObject(reply string) (json.RawMessage, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := []byte(reply[start : end+1])
	if !json.Valid(candidate) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

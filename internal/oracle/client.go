package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

const maxResponseBytes = 1 << 20

// Client asks an HTTP completion endpoint to pick catalog entries
type Client struct {
	config *Config
	http   *http.Client
	logger logger.Logger
}

// NewClient creates a completion client. A nil config uses DefaultConfig.
func NewClient(config *Config, log logger.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger.OrGlobal(log, "sku-oracle"),
	}
}

type completionRequest struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

// completionResponse covers the common response shapes: a bare text field,
// OpenAI-style choices and Anthropic-style content blocks
type completionResponse struct {
	Text       string `json:"text"`
	Completion string `json:"completion"`
	Choices    []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (r completionResponse) text() string {
	var parts []string
	parts = append(parts, r.Text, r.Completion)
	for _, c := range r.Choices {
		parts = append(parts, c.Text, c.Message.Content)
	}
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Suggest implements sku.Oracle. Transport and status failures are returned
// as network errors; an unreadable answer is an empty suggestion list.
func (c *Client) Suggest(ctx context.Context, req sku.OracleRequest) ([]sku.Suggestion, error) {
	body, err := json.Marshal(completionRequest{
		Model:     c.config.Model,
		Prompt:    BuildPrompt(req, c.config.MaxResults),
		MaxTokens: 256,
	})
	if err != nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "encode oracle request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, c.config.Endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		value := c.config.APIKey
		if strings.EqualFold(c.config.APIKeyHeader, "Authorization") {
			value = "Bearer " + value
		}
		httpReq.Header.Set(c.config.APIKeyHeader, value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, c.config.Endpoint, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, c.config.Endpoint,
			fmt.Errorf("oracle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	text := string(raw)
	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if t := parsed.text(); t != "" {
			text = t
		}
	}

	suggestions := ParseSuggestions(text, c.config.MaxResults)
	if len(suggestions) == 0 {
		c.logger.WithField("description", req.Description).Debug("Oracle answer contained no suggestions")
	}
	return suggestions, nil
}

// BuildPrompt renders the request as a completion prompt listing the
// catalog snapshot
func BuildPrompt(req sku.OracleRequest, maxResults int) string {
	var b strings.Builder
	b.WriteString("Match the purchase line description to entries of the product catalog.\n")
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	if req.HSNCode != "" {
		fmt.Fprintf(&b, "HSN code: %s\n", req.HSNCode)
	}
	b.WriteString("Catalog (id | code | name | hsn):\n")
	for _, e := range req.Catalog {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n", e.ID, e.Code, e.Name, e.HSNCode)
	}
	fmt.Fprintf(&b, "Answer with a JSON array of at most %d objects {\"id\": <catalog id>, \"confidence\": <0 to 1>}, best first. ", maxResults)
	b.WriteString("Answer [] if nothing fits.\n")
	return b.String()
}

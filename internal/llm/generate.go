package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dreamspace-gateway/internal/imaging"
	"dreamspace-gateway/internal/metrics"
)

const (
	maxRequestSize   = 20 * 1024 * 1024 // inline data limit of generateContent
	maxErrorBodySize = 64 * 1024
)

// generateContent performs exactly one generateContent call. Non-2xx
// answers come back as *UpstreamError for Classify to interpret.
func (c *client) generateContent(
	parentCtx context.Context,
	operation, model string,
	req geminiGenerateContentRequest,
) (*geminiGenerateContentResponse, error) {
	if reason := c.cfg.keyProblem(); reason != "" {
		return nil, configError(reason)
	}

	start := time.Now()

	// Per-attempt timeout
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, &Error{
			Kind:    KindInvalidRequest,
			Message: msgInvalid,
			Err:     fmt.Errorf("request too large (%d bytes, max %d)", len(bodyBytes), maxRequestSize),
		}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini: build HTTP request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("gemini request starting",
		zap.String("operation", operation),
		zap.String("model", model),
		zap.Int("request_bytes", len(bodyBytes)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(operation, "error", start)
		c.logger.Warn("gemini request failed",
			zap.String("operation", operation),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(operation, strconv.Itoa(resp.StatusCode), start)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		upErr := &UpstreamError{
			Status:     resp.StatusCode,
			Message:    truncate(strings.TrimSpace(string(body)), 200),
			RetryAfter: parseRetryAfter(resp, c.now()),
		}
		var perr geminiErrorResponse
		if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
			upErr.Message = perr.Error.Message
		}

		c.logger.Warn("gemini upstream error",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("error_message", upErr.Message),
			zap.Duration("retry_after", upErr.RetryAfter),
		)
		return nil, upErr
	}

	var out geminiGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.observe(operation, "malformed", start)
		return nil, malformed("The design engine returned an unreadable response.", err)
	}
	c.observe(operation, "ok", start)

	c.logger.Info("gemini request completed",
		zap.String("operation", operation),
		zap.String("model", model),
		zap.Int("candidates", len(out.Candidates)),
		zap.Duration("duration", time.Since(start)),
	)
	return &out, nil
}

func (c *client) observe(operation, outcome string, start time.Time) {
	metrics.UpstreamLatencySeconds.
		WithLabelValues(operation, outcome).
		Observe(time.Since(start).Seconds())
}

// imagePart converts a data URI (or bare base64) into an inline part.
func imagePart(dataURI string) (geminiPart, error) {
	d, err := imaging.ParseDataURI(dataURI)
	if err != nil {
		return geminiPart{}, &Error{Kind: KindInvalidRequest, Message: msgInvalid, Err: err}
	}
	mime := d.MIMEType
	if mime == "" {
		mime = http.DetectContentType(d.Data)
	}
	return geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: d.Base64()}}, nil
}

// firstText concatenates the text parts of the first candidate that has any.
func (r *geminiGenerateContentResponse) firstText() string {
	for _, cand := range r.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if s := strings.TrimSpace(sb.String()); s != "" {
			return s
		}
	}
	return ""
}

// firstImage returns the first inline image part as a data URI.
func (r *geminiGenerateContentResponse) firstImage() (string, bool) {
	for _, cand := range r.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			mime := p.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			if !strings.HasPrefix(mime, "image/") {
				continue
			}
			return "data:" + mime + ";base64," + p.InlineData.Data, true
		}
	}
	return "", false
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

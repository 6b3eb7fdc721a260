package llm

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

const (
	OpRedesign = "redesign"
	OpAdvice   = "advice"
	OpShop     = "shop"
	OpDescribe = "describe_style"
)

// Redesign asks the image model to restyle the room and returns the first
// generated image as a data URI.
func (c *client) Redesign(ctx context.Context, image, style string) (string, error) {
	img, err := imagePart(image)
	if err != nil {
		return "", err
	}

	resp, err := c.generateContent(ctx, OpRedesign, c.cfg.ImageModel, geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{img, {Text: redesignPrompt(style)}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	})
	if err != nil {
		return "", err
	}

	out, ok := resp.firstImage()
	if !ok {
		reason := "no inline image part"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		c.logger.Warn("redesign returned no image", zap.String("reason", reason))
		return "", malformed("No image was returned by the design engine. Try a different photo or style.", errors.New(reason))
	}
	return out, nil
}

// Advice requests a DesignAdvice object under an enforced response schema.
func (c *client) Advice(ctx context.Context, image, style string) (*DesignAdvice, error) {
	raw, err := c.generateJSON(ctx, OpAdvice, image, advicePrompt(style), adviceSchema())
	if err != nil {
		return nil, err
	}
	advice, err := decodeAdvice(raw)
	if err != nil {
		return nil, malformed("The design engine returned incomplete advice.", err)
	}
	return advice, nil
}

// ShopTheLook detects purchasable products and their bounding boxes.
func (c *client) ShopTheLook(ctx context.Context, image string) (*LookDraft, error) {
	raw, err := c.generateJSON(ctx, OpShop, image, shopPrompt, lookSchema())
	if err != nil {
		return nil, err
	}
	look, err := decodeLook(raw)
	if err != nil {
		return nil, malformed("The design engine returned an incomplete product list.", err)
	}
	return look, nil
}

// DescribeStyle returns a short plain-text description of a style.
func (c *client) DescribeStyle(ctx context.Context, style string) (string, error) {
	resp, err := c.generateContent(ctx, OpDescribe, c.cfg.TextModel, geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: describeStylePrompt(style)}},
		}},
	})
	if err != nil {
		return "", err
	}
	text := resp.firstText()
	if text == "" {
		return "", malformed("The design engine returned an empty description.", errors.New("no text part"))
	}
	return text, nil
}

func (c *client) generateJSON(ctx context.Context, operation, image, prompt string, schema *geminiSchema) ([]byte, error) {
	img, err := imagePart(image)
	if err != nil {
		return nil, err
	}

	resp, err := c.generateContent(ctx, operation, c.cfg.TextModel, geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{img, {Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	})
	if err != nil {
		return nil, err
	}

	text := resp.firstText()
	if text == "" {
		return nil, malformed("The design engine returned an empty response.", errors.New("no text part"))
	}
	return []byte(stripCodeFence(text)), nil
}

// stripCodeFence removes a ```json fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

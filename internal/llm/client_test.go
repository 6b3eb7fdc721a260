package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func testImage(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func textResponse(text string) geminiGenerateContentResponse {
	return geminiGenerateContentResponse{
		Candidates: []geminiCandidate{{
			Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}},
		}},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { closeClient(c) })
	return c
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{BaseURL: "ftp://example.com"}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestMissingKeyFailsBeforeNetwork(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	for _, key := range []string{"", "PLACEHOLDER_API_KEY", "<your key>"} {
		c, err := NewClient(Config{BaseURL: srv.URL, APIKey: key}, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("NewClient(%q): %v", key, err)
		}

		_, err = c.DescribeStyle(context.Background(), "Zen")
		var lerr *Error
		if !errors.As(err, &lerr) || lerr.Kind != KindConfig {
			t.Fatalf("key %q: expected config error, got %v", key, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", calls.Load())
	}
}

func TestRedesignSuccess(t *testing.T) {
	t.Parallel()

	var gotReq geminiGenerateContentRequest
	var gotKey string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash-image:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotKey = r.Header.Get("x-goog-api-key")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		resp := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{
					{Text: "Here is your room"},
					{InlineData: &geminiInlineData{MimeType: "image/png", Data: "AAAA"}},
					{InlineData: &geminiInlineData{MimeType: "image/png", Data: "BBBB"}},
				}},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	out, err := c.Redesign(context.Background(), testImage(t), "Gothic")
	if err != nil {
		t.Fatalf("Redesign: %v", err)
	}

	if out != "data:image/png;base64,AAAA" {
		t.Fatalf("expected first inline image, got %q", out)
	}
	if gotKey != "test-key" {
		t.Fatalf("unexpected api key header: %q", gotKey)
	}
	if len(gotReq.Contents) != 1 || len(gotReq.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request contents: %#v", gotReq.Contents)
	}
	parts := gotReq.Contents[0].Parts
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/png" {
		t.Fatalf("expected inline image first, got %#v", parts[0])
	}
	prompt := strings.ToLower(parts[1].Text)
	for _, want := range []string{"gothic", "watermark", "perspective"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %s", want, parts[1].Text)
		}
	}
}

func TestRedesignWithoutImageIsMalformed(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("I cannot do that"))
	})

	_, err := c.Redesign(context.Background(), testImage(t), "Zen")
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindMalformed {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestAdviceSchemaEnforced(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		wantKind Kind
	}{
		{
			name:    "complete",
			payload: `{"critique":"ok","suggestions":["a"],"colorPalette":[{"name":"Ink","hex":"#1A1A1A"}],"furnitureRecommendations":["sofa"]}`,
		},
		{
			name:     "missing palette",
			payload:  `{"critique":"ok","suggestions":["a"],"furnitureRecommendations":["sofa"]}`,
			wantKind: KindMalformed,
		},
		{
			name:     "bad hex",
			payload:  `{"critique":"ok","suggestions":[],"colorPalette":[{"name":"Ink","hex":"black"}],"furnitureRecommendations":[]}`,
			wantKind: KindMalformed,
		},
		{
			name:    "fenced",
			payload: "```json\n{\"critique\":\"ok\",\"suggestions\":[],\"colorPalette\":[],\"furnitureRecommendations\":[]}\n```",
		},
		{
			name:     "not json",
			payload:  "sorry",
			wantKind: KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotReq geminiGenerateContentRequest
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				_ = json.NewDecoder(r.Body).Decode(&gotReq)
				_ = json.NewEncoder(w).Encode(textResponse(tt.payload))
			})

			advice, err := c.Advice(context.Background(), testImage(t), "Japandi")
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Advice: %v", err)
				}
				if advice.Critique != "ok" {
					t.Fatalf("unexpected advice: %#v", advice)
				}
				if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.ResponseMimeType != "application/json" {
					t.Fatalf("expected JSON mode, got %#v", gotReq.GenerationConfig)
				}
				if s := gotReq.GenerationConfig.ResponseSchema; s == nil || len(s.Required) != 4 {
					t.Fatalf("expected schema with 4 required fields, got %#v", s)
				}
				return
			}

			var lerr *Error
			if !errors.As(err, &lerr) || lerr.Kind != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
		})
	}
}

func TestShopTheLookBoxLength(t *testing.T) {
	t.Parallel()

	good := `{"title":"T","style":"Modern","description":"D","products":[{"name":"Lamp","price":40,"category":"Lighting","query":"brass lamp","box_2d":[10,20,300,400]}]}`
	short := `{"title":"T","style":"Modern","description":"D","products":[{"name":"Lamp","price":40,"category":"Lighting","query":"brass lamp","box_2d":[10,20,300]}]}`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse(good))
	})

	look, err := c.ShopTheLook(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("ShopTheLook: %v", err)
	}
	if len(look.Products) != 1 || look.Products[0].Box != [4]float64{10, 20, 300, 400} {
		t.Fatalf("unexpected products: %#v", look.Products)
	}

	if _, err := decodeLook([]byte(short)); err == nil {
		t.Fatalf("expected 3-value box_2d to be rejected")
	}
}

func TestUpstreamErrorsAreClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		wantKind   Kind
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`, "7", KindTransient},
		{"daily quota", 429, `{"error":{"code":429,"message":"Quota exceeded for metric: generate_requests_per_model_per_day, limit: 50"}}`, "", KindQuotaExhausted},
		{"overloaded", 503, `{"error":{"code":503,"message":"The model is overloaded. Please try again later."}}`, "", KindTransient},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key."}}`, "", KindAuthorization},
		{"leaked key", 403, `{"error":{"code":403,"message":"Your API key was reported as leaked."}}`, "", KindAuthorization},
		{"entity", 404, `{"error":{"code":404,"message":"Requested entity was not found."}}`, "", KindEntityMismatch},
		{"bad request", 400, `{"error":{"code":400,"message":"Invalid value at contents"}}`, "", KindInvalidRequest},
		{"400 mentioning unavailable", 400, `{"error":{"code":400,"message":"Image generation is unavailable in your country."}}`, "", KindInvalidRequest},
		{"400 mentioning quota", 400, `{"error":{"code":400,"message":"Invalid JSON payload: unknown quota field."}}`, "", KindInvalidRequest},
		{"404 mentioning unavailable", 404, `{"error":{"code":404,"message":"Model unavailable for this method."}}`, "", KindUnknown},
		{"plain 500", 500, `internal`, "", KindUnknown},
		{"500 unavailable", 500, `{"error":{"code":500,"message":"backend unavailable"}}`, "", KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.DescribeStyle(context.Background(), "Zen")
			if err == nil {
				t.Fatalf("expected error")
			}
			cerr := Classify(err)
			if cerr.Kind != tt.wantKind {
				t.Fatalf("expected %s, got %s (%v)", tt.wantKind, cerr.Kind, err)
			}
			if cerr.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, cerr.Status)
			}
			if tt.retryAfter == "7" && cerr.Cooldown.Seconds() != 7 {
				t.Fatalf("expected Retry-After to be carried, got %s", cerr.Cooldown)
			}
		})
	}
}

func TestDescribeStyle(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiGenerateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents[0].Parts) != 1 || req.Contents[0].Parts[0].InlineData != nil {
			t.Errorf("describe should send a text-only request: %#v", req.Contents)
		}
		_ = json.NewEncoder(w).Encode(textResponse("  Calm and balanced.  "))
	})

	got, err := c.DescribeStyle(context.Background(), "Zen")
	if err != nil {
		t.Fatalf("DescribeStyle: %v", err)
	}
	if got != "Calm and balanced." {
		t.Fatalf("unexpected description: %q", got)
	}
}

func closeClient(c Client) {
	if closer, ok := c.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"dreamspace-gateway/internal/llm"
	"dreamspace-gateway/internal/styles"
)

// fakeDesigner emits one status message per call and returns canned values.
type fakeDesigner struct {
	image  string
	advice *llm.DesignAdvice
	look   *llm.LookCollection
	desc   string
	err    error

	gotImage string
	gotStyle string
}

func (f *fakeDesigner) GenerateRedesign(ctx context.Context, image, style string, onStatus llm.StatusFunc) (string, error) {
	f.gotImage, f.gotStyle = image, style
	onStatus("Sending to design engine...")
	return f.image, f.err
}

func (f *fakeDesigner) GetAdvice(ctx context.Context, image, style string, onStatus llm.StatusFunc) (*llm.DesignAdvice, error) {
	f.gotImage, f.gotStyle = image, style
	onStatus("Loading from cache...")
	return f.advice, f.err
}

func (f *fakeDesigner) ShopTheLook(ctx context.Context, image string, onStatus llm.StatusFunc) (*llm.LookCollection, error) {
	f.gotImage = image
	return f.look, f.err
}

func (f *fakeDesigner) DescribeStyle(ctx context.Context, style string) string {
	f.gotStyle = style
	return f.desc
}

func newTestRouter(d Designer) http.Handler {
	h := NewDesignHandler(d)
	r := chi.NewRouter()
	r.Post("/v1/redesign", h.Redesign)
	r.Post("/v1/advice", h.Advice)
	r.Post("/v1/shop", h.Shop)
	r.Get("/v1/styles", h.Styles)
	r.Get("/v1/styles/{style}/description", h.DescribeStyle)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRedesignReturnsImageAndStatus(t *testing.T) {
	d := &fakeDesigner{image: "data:image/png;base64,AAAA"}
	rec := do(t, newTestRouter(d), http.MethodPost, "/v1/redesign", `{"image":"data:image/jpeg;base64,/9j/","style":"Japandi"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp redesignResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Image != d.image || len(resp.Status) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if d.gotStyle != "Japandi" || d.gotImage != "data:image/jpeg;base64,/9j/" {
		t.Fatalf("request not forwarded: %q %q", d.gotImage, d.gotStyle)
	}
}

func TestAdviceReturnsStructuredBody(t *testing.T) {
	d := &fakeDesigner{advice: &llm.DesignAdvice{
		Critique:     "Bright room.",
		Suggestions:  []string{"Add a rug"},
		ColorPalette: []llm.ColorSwatch{{Name: "Sand", Hex: "#C2B280"}},
	}}
	rec := do(t, newTestRouter(d), http.MethodPost, "/v1/advice", `{"image":"x","style":"Coastal"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Advice struct {
			ColorPalette []llm.ColorSwatch `json:"colorPalette"`
		} `json:"advice"`
		Status []string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Advice.ColorPalette) != 1 || resp.Status[0] != "Loading from cache..." {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestShopEmptyStatusIsArray(t *testing.T) {
	d := &fakeDesigner{look: &llm.LookCollection{ID: "c1", Products: []llm.Product{}}}
	rec := do(t, newTestRouter(d), http.MethodPost, "/v1/shop", `{"image":"x"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":[]`) {
		t.Fatalf("status should encode as an empty array: %s", rec.Body.String())
	}
}

func TestInvalidJSONIs400(t *testing.T) {
	rec := do(t, newTestRouter(&fakeDesigner{}), http.MethodPost, "/v1/advice", `{"image":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantKind   string
		retryAfter string
	}{
		{"config", &llm.Error{Kind: llm.KindConfig, Message: "no key"}, 500, "config", ""},
		{"auth", &llm.Error{Kind: llm.KindAuthorization, Message: "bad key"}, 401, "authorization", ""},
		{"entity", &llm.Error{Kind: llm.KindEntityMismatch, Message: "no model"}, 409, "entity_mismatch", ""},
		{"invalid", &llm.Error{Kind: llm.KindInvalidRequest, Message: "no image"}, 400, "invalid_request", ""},
		{"quota", &llm.Error{Kind: llm.KindQuotaExhausted, Message: "daily"}, 429, "quota_exhausted", ""},
		{"capacity", &llm.Error{Kind: llm.KindCapacityExceeded, Message: "busy", Cooldown: 60 * time.Second}, 503, "capacity_exceeded", "60"},
		{"malformed", &llm.Error{Kind: llm.KindMalformed, Message: "no image"}, 502, "malformed_response", ""},
		{"unclassified", errors.New("boom"), 502, "unknown", ""},
		{"deadline", context.DeadlineExceeded, 504, "gateway_timeout", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestRouter(&fakeDesigner{err: tt.err}), http.MethodPost, "/v1/redesign", `{"image":"x","style":"Boho"}`)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantKind || body.Message == "" {
				t.Fatalf("unexpected body %+v", body)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Fatalf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
			if tt.retryAfter != "" && body.RetryAfterSeconds != 60 {
				t.Fatalf("expected retry_after_seconds in body, got %+v", body)
			}
		})
	}
}

func TestStylesListsCatalog(t *testing.T) {
	rec := do(t, newTestRouter(&fakeDesigner{}), http.MethodGet, "/v1/styles", "")

	var got []styles.Style
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(styles.All()) {
		t.Fatalf("expected %d styles, got %d", len(styles.All()), len(got))
	}
}

func TestDescribeStyleUsesPathParam(t *testing.T) {
	d := &fakeDesigner{desc: "Warm minimalism."}
	rec := do(t, newTestRouter(d), http.MethodGet, "/v1/styles/Japandi/description", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got describeResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Style != "Japandi" || got.Description != "Warm minimalism." || d.gotStyle != "Japandi" {
		t.Fatalf("unexpected response %+v", got)
	}
}

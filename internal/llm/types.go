package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// ColorSwatch is one entry of an advice palette.
type ColorSwatch struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// DesignAdvice is the structured critique returned for a room photo.
type DesignAdvice struct {
	Critique                 string        `json:"critique"`
	Suggestions              []string      `json:"suggestions"`
	ColorPalette             []ColorSwatch `json:"colorPalette"`
	FurnitureRecommendations []string      `json:"furnitureRecommendations"`
}

// ProductDraft is a product as detected by the model, before cropping.
// Box is [yMin, xMin, yMax, xMax] on a 0-1000 scale.
type ProductDraft struct {
	Name     string     `json:"name"`
	Price    float64    `json:"price"`
	Category string     `json:"category"`
	Query    string     `json:"query"`
	Box      [4]float64 `json:"box_2d"`
}

// LookDraft is the raw "shop the look" answer.
type LookDraft struct {
	Title       string         `json:"title"`
	Style       string         `json:"style"`
	Description string         `json:"description"`
	Products    []ProductDraft `json:"products"`
}

// Product is a shoppable item with its display image resolved.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Price       float64    `json:"price"`
	Category    string     `json:"category"`
	Query       string     `json:"query"`
	Image       string     `json:"image"`
	BoundingBox [4]float64 `json:"boundingBox"`
}

// LookCollection is what callers of ShopTheLook receive.
type LookCollection struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Style       string    `json:"style"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Products    []Product `json:"products"`
}

// Client performs single generation attempts. Retrying is the caller's job.
type Client interface {
	Redesign(ctx context.Context, image, style string) (string, error)
	Advice(ctx context.Context, image, style string) (*DesignAdvice, error)
	ShopTheLook(ctx context.Context, image string) (*LookDraft, error)
	DescribeStyle(ctx context.Context, style string) (string, error)
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// wire shapes with pointers so absent fields are distinguishable from zero
type adviceWire struct {
	Critique                 *string       `json:"critique"`
	Suggestions              *[]string     `json:"suggestions"`
	ColorPalette             *[]swatchWire `json:"colorPalette"`
	FurnitureRecommendations *[]string     `json:"furnitureRecommendations"`
}

type swatchWire struct {
	Name *string `json:"name"`
	Hex  *string `json:"hex"`
}

type lookWire struct {
	Title       *string        `json:"title"`
	Style       *string        `json:"style"`
	Description *string        `json:"description"`
	Products    *[]productWire `json:"products"`
}

type productWire struct {
	Name     *string   `json:"name"`
	Price    *float64  `json:"price"`
	Category *string   `json:"category"`
	Query    *string   `json:"query"`
	Box      []float64 `json:"box_2d"`
}

var errMissingField = errors.New("missing required field")

func required(name string, present bool) error {
	if !present {
		return fmt.Errorf("%w %q", errMissingField, name)
	}
	return nil
}

// decodeAdvice parses and validates an advice payload. Any absent field
// or malformed color is an error; nothing is defaulted.
func decodeAdvice(raw []byte) (*DesignAdvice, error) {
	var w adviceWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode advice: %w", err)
	}

	if err := errors.Join(
		required("critique", w.Critique != nil),
		required("suggestions", w.Suggestions != nil),
		required("colorPalette", w.ColorPalette != nil),
		required("furnitureRecommendations", w.FurnitureRecommendations != nil),
	); err != nil {
		return nil, err
	}

	out := &DesignAdvice{
		Critique:                 *w.Critique,
		Suggestions:              *w.Suggestions,
		FurnitureRecommendations: *w.FurnitureRecommendations,
		ColorPalette:             make([]ColorSwatch, 0, len(*w.ColorPalette)),
	}
	for i, s := range *w.ColorPalette {
		if s.Name == nil || s.Hex == nil {
			return nil, fmt.Errorf("%w in colorPalette[%d]", errMissingField, i)
		}
		if !hexColor.MatchString(*s.Hex) {
			return nil, fmt.Errorf("colorPalette[%d]: %q is not a #RRGGBB color", i, *s.Hex)
		}
		out.ColorPalette = append(out.ColorPalette, ColorSwatch{Name: *s.Name, Hex: *s.Hex})
	}
	return out, nil
}

// decodeLook parses and validates a shop-the-look payload.
func decodeLook(raw []byte) (*LookDraft, error) {
	var w lookWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}

	if err := errors.Join(
		required("title", w.Title != nil),
		required("style", w.Style != nil),
		required("description", w.Description != nil),
		required("products", w.Products != nil),
	); err != nil {
		return nil, err
	}

	out := &LookDraft{
		Title:       *w.Title,
		Style:       *w.Style,
		Description: *w.Description,
		Products:    make([]ProductDraft, 0, len(*w.Products)),
	}
	for i, p := range *w.Products {
		if p.Name == nil || p.Price == nil || p.Category == nil || p.Query == nil {
			return nil, fmt.Errorf("%w in products[%d]", errMissingField, i)
		}
		if len(p.Box) != 4 {
			return nil, fmt.Errorf("products[%d]: box_2d has %d values, want 4", i, len(p.Box))
		}
		out.Products = append(out.Products, ProductDraft{
			Name:     *p.Name,
			Price:    *p.Price,
			Category: *p.Category,
			Query:    *p.Query,
			Box:      [4]float64{p.Box[0], p.Box[1], p.Box[2], p.Box[3]},
		})
	}
	return out, nil
}

package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultResizeQuality is the JPEG quality used when shrinking uploads.
	DefaultResizeQuality = 50
	// DefaultCropQuality is the JPEG quality used for product crops.
	DefaultCropQuality = 60

	// BoxScale is the normalization range of bounding boxes.
	BoxScale = 1000.0

	// MaxPixels bounds the decoded size of any image we touch.
	MaxPixels = 40_000_000
)

// ErrTooLarge is returned for images whose header declares more than MaxPixels.
var ErrTooLarge = errors.New("imaging: image exceeds pixel limit")

// Transcoder resizes and crops data-URI images. All failures are soft: Resize
// returns its input unchanged and Crop returns "".
type Transcoder struct {
	ResizeQuality int
	CropQuality   int
	logger        *zap.Logger
}

// NewTranscoder returns a transcoder with the default qualities.
func NewTranscoder(logger *zap.Logger) *Transcoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{
		ResizeQuality: DefaultResizeQuality,
		CropQuality:   DefaultCropQuality,
		logger:        logger.Named("imaging"),
	}
}

// Resize scales the image so its longer side equals maxDimension. Images
// already within bounds are returned as-is, so Resize(Resize(x, n), n) ==
// Resize(x, n).
func (t *Transcoder) Resize(src string, maxDimension int) string {
	if maxDimension <= 0 {
		return src
	}

	img, err := decode(src)
	if err != nil {
		t.logger.Debug("resize decode failed, keeping original", zap.Error(err))
		return src
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDimension && h <= maxDimension {
		return src
	}

	if w > h {
		h = int(math.Round(float64(h) * float64(maxDimension) / float64(w)))
		w = maxDimension
	} else {
		w = int(math.Round(float64(w) * float64(maxDimension) / float64(h)))
		h = maxDimension
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	out, err := encodeJPEG(dst, t.ResizeQuality)
	if err != nil {
		t.logger.Debug("resize encode failed, keeping original", zap.Error(err))
		return src
	}
	return out
}

// Crop extracts box ([yMin, xMin, yMax, xMax] on a 0–1000 scale) from the
// image. A degenerate box or an unreadable image yields "".
func (t *Transcoder) Crop(src string, box [4]float64) string {
	img, err := decode(src)
	if err != nil {
		t.logger.Debug("crop decode failed", zap.Error(err))
		return ""
	}

	rect, ok := pixelRect(img.Bounds(), box)
	if !ok {
		return ""
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Over)

	out, err := encodeJPEG(dst, t.CropQuality)
	if err != nil {
		t.logger.Debug("crop encode failed", zap.Error(err))
		return ""
	}
	return out
}

// Dimensions reports the pixel size of a data-URI image.
func Dimensions(src string) (int, int, error) {
	uri, err := ParseDataURI(src)
	if err != nil {
		return 0, 0, err
	}
	cfg, err := decodeConfig(uri.Data)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// CheckSize returns ErrTooLarge when src declares more than MaxPixels.
// Other errors mean the header could not be read.
func CheckSize(src string) error {
	w, h, err := Dimensions(src)
	if err != nil {
		return err
	}
	return checkPixels(w, h)
}

func checkPixels(w, h int) error {
	if int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, w, h)
	}
	return nil
}

func decodeConfig(data []byte) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("imaging: decode config: %w", err)
	}
	return cfg, nil
}

// pixelRect maps a normalized box onto bounds.
func pixelRect(bounds image.Rectangle, box [4]float64) (image.Rectangle, bool) {
	yMin, xMin, yMax, xMax := box[0], box[1], box[2], box[3]
	width, height := float64(bounds.Dx()), float64(bounds.Dy())

	x := xMin / BoxScale * width
	y := yMin / BoxScale * height
	w := (xMax - xMin) / BoxScale * width
	h := (yMax - yMin) / BoxScale * height
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}

	r := image.Rect(
		bounds.Min.X+int(math.Floor(x)),
		bounds.Min.Y+int(math.Floor(y)),
		bounds.Min.X+int(math.Floor(x+w)),
		bounds.Min.Y+int(math.Floor(y+h)),
	).Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

func decode(src string) (image.Image, error) {
	uri, err := ParseDataURI(src)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeConfig(uri.Data)
	if err != nil {
		return nil, err
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(uri.Data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	return img, nil
}

func encodeJPEG(img image.Image, quality int) (string, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultResizeQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return DataURI{MIMEType: "image/jpeg", Data: buf.Bytes()}.String(), nil
}

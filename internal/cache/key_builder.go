package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Operation kinds used as the first fingerprint component.
const (
	KindRedesign = "redesign"
	KindAdvice   = "advice"
	KindShop     = "shop"
	KindQuizDesc = "quiz_desc"
	fieldSep     = "_"
)

// Fingerprint identifies "same operation, same image, same parameters".
//
// The digest is xxhash64 over the full image payload; the payload length is
// kept alongside it so a digest collision also needs an equal-length input.
type Fingerprint struct {
	Kind   string
	Digest string
	Size   int
	Params []string
}

// String renders the fingerprint as the cache key:
// <kind>_<digest>_<size>_<param>_<param>...
// Fingerprints without a payload omit digest and size (quiz_desc_<style>).
func (f Fingerprint) String() string {
	parts := make([]string, 0, 3+len(f.Params))
	parts = append(parts, f.Kind)
	if f.Digest != "" {
		parts = append(parts, f.Digest, strconv.Itoa(f.Size))
	}
	for _, p := range f.Params {
		parts = append(parts, strings.TrimSpace(p))
	}
	return strings.Join(parts, fieldSep)
}

// BuildFingerprint fingerprints an image-bearing request.
func BuildFingerprint(kind, payload string, params ...string) Fingerprint {
	return Fingerprint{
		Kind:   kind,
		Digest: digest(payload),
		Size:   len(payload),
		Params: params,
	}
}

// BuildTextFingerprint fingerprints a request without an image payload.
func BuildTextFingerprint(kind string, params ...string) Fingerprint {
	return Fingerprint{Kind: kind, Params: params}
}

func digest(payload string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(payload))
}

// kindOf extracts the operation kind from a rendered key, for logging.
func kindOf(key, prefix string) string {
	key = strings.TrimPrefix(key, prefix)
	for _, k := range []string{KindQuizDesc, KindRedesign, KindAdvice, KindShop} {
		if strings.HasPrefix(key, k+fieldSep) {
			return k
		}
	}
	return "unknown"
}

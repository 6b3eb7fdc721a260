package imaging

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrNotDataURI is returned when a payload is neither a data URI nor bare base64.
var ErrNotDataURI = errors.New("imaging: payload is not a base64 data URI")

// DataURI is a decoded `data:<mime>;base64,<payload>` image.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// ParseDataURI decodes a data URI. A bare base64 payload is accepted and
// reported with an empty MIME type.
func ParseDataURI(s string) (DataURI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DataURI{}, ErrNotDataURI
	}

	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, rest, ok := strings.Cut(s[len("data:"):], ",")
		if !ok {
			return DataURI{}, ErrNotDataURI
		}
		params := strings.Split(header, ";")
		if params[len(params)-1] != "base64" {
			return DataURI{}, ErrNotDataURI
		}
		mime = params[0]
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return DataURI{}, ErrNotDataURI
		}
	}
	return DataURI{MIMEType: mime, Data: data}, nil
}

// String renders the data URI.
func (d DataURI) String() string {
	mime := d.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// Base64 returns the payload without the data URI header.
func (d DataURI) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

package photostore

import (
	"bytes"
	"encoding/base64"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Payload returns the raw bytes carried by a data URL. Payloads without
// a data: prefix, or with a non-base64 encoding, are treated as
// already-raw bytes.
func Payload(dataURL string) []byte {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return []byte(dataURL)
	}
	meta, body, ok := strings.Cut(rest, ",")
	if !ok {
		return []byte(dataURL)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return []byte(body)
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return []byte(body)
	}
	return raw
}

// PayloadSize is the default byte-length estimator for a photo payload
func PayloadSize(dataURL string) int64 {
	return int64(len(Payload(dataURL)))
}

// DecodeDimensions is the default pixel-dimension decoder. Payloads that
// do not decode as a known image format yield zero dimensions rather
// than an error; dimensions are informational metadata, not a gate on
// accepting the photo.
func DecodeDimensions(dataURL string) (width, height int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(Payload(dataURL)))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

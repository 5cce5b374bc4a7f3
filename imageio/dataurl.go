// Package imageio converts between raw image bytes and base64 data URLs and validates image formats.
package imageio

import (
	"encoding/base64"
	"fmt"
	"strings"

	"imagestudio/types"
)

const dataURLPrefix = "data:"

// DataURL is a decoded `data:<mime>;base64,<payload>` value.
type DataURL struct {
	MIMEType string
	Data     []byte
}

// String re-encodes the data URL with standard padded base64.
func (d DataURL) String() string {
	return EncodeDataURL(d.MIMEType, d.Data)
}

// IsDataURL reports whether s looks like a data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, dataURLPrefix)
}

// EncodeDataURL builds `data:<mime>;base64,<payload>`.
func EncodeDataURL(mimeType string, data []byte) string {
	return dataURLPrefix + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (DataURL, error) {
	if !IsDataURL(s) {
		return DataURL{}, types.UnsupportedFormat("input is not a data URL")
	}
	commaIndex := strings.Index(s, ",")
	if commaIndex < 0 {
		return DataURL{}, types.UnsupportedFormat("data URL has no payload separator")
	}

	// e.g. "data:image/png;base64"
	header := s[len(dataURLPrefix):commaIndex]
	mimeType, encoding, ok := strings.Cut(header, ";")
	if !ok || encoding != "base64" {
		return DataURL{}, types.UnsupportedFormat("data URL is not base64 encoded")
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return DataURL{}, types.UnsupportedFormat("data URL has no MIME type")
	}

	data, err := decodeBase64(s[commaIndex+1:])
	if err != nil {
		return DataURL{}, types.UnsupportedFormat("data URL payload is not valid base64").WithCause(err)
	}
	return DataURL{MIMEType: mimeType, Data: data}, nil
}

// RequireMIME rejects data URLs whose MIME type is not in allowed.
func RequireMIME(d DataURL, allowed ...string) error {
	for _, m := range allowed {
		if d.MIMEType == m {
			return nil
		}
	}
	return types.UnsupportedFormat(fmt.Sprintf("unsupported image type %q, expected one of %s", d.MIMEType, strings.Join(allowed, ", ")))
}

// decodeBase64 accepts padded and unpadded standard base64, ignoring embedded whitespace.
func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}

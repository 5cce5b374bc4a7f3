package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"

	"imagestudio/types"
)

// Image MIME types recognised by SniffFormat.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
	MIMEGIF  = "image/gif"
)

var formatMIME = map[string]string{
	"png":  MIMEPNG,
	"jpeg": MIMEJPEG,
	"gif":  MIMEGIF,
	"webp": MIMEWebP,
}

// SniffFormat checks the image header and returns the matching MIME type.
func SniffFormat(data []byte) (string, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		if _, err := webp.DecodeConfig(bytes.NewReader(data)); err != nil {
			return "", types.UnsupportedFormat("corrupt webp image").WithCause(err)
		}
		return MIMEWebP, nil
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", types.UnsupportedFormat("unrecognised image data").WithCause(err)
	}
	mimeType, ok := formatMIME[format]
	if !ok {
		return "", types.UnsupportedFormat(fmt.Sprintf("unsupported image format %q", format))
	}
	return mimeType, nil
}

// IsImageMIME reports whether a declared MIME type is an image type.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// ReadUpload reads an uploaded file and returns it as a data URL.
// Non-image MIME types are rejected before the body is read. A limit <= 0 disables the size cap.
func ReadUpload(mimeType string, r io.Reader, limit int64) (string, error) {
	if !IsImageMIME(mimeType) {
		return "", types.UnsupportedFormat(fmt.Sprintf("uploaded file must be an image, got %q", mimeType))
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "could not read uploaded file").WithCause(err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return "", types.NewError(types.ErrInvalidRequest, fmt.Sprintf("uploaded file exceeds %d bytes", limit))
	}
	if len(data) == 0 {
		return "", types.MissingInput("uploaded file is empty")
	}

	// Fall back to the declared type for formats the decoders do not know (heic, svg).
	if sniffed, err := SniffFormat(data); err == nil {
		mimeType = sniffed
	}
	return EncodeDataURL(strings.ToLower(mimeType), data), nil
}

package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"
)

const fallbackMIME = "image/jpeg"

var ErrEmpty = errors.New("image data is empty")

// Asset is an encoded image payload together with its media type.
// Callers treat it as immutable once captured; use Clone to hand a copy
// to code that outlives the caller's ownership.
type Asset struct {
	MIMEType string
	Data     []byte
}

// FromBytes wraps raw bytes, trusting declared only when it names a concrete type.
func FromBytes(data []byte, declared string) (Asset, error) {
	if len(data) == 0 {
		return Asset{}, ErrEmpty
	}
	return Asset{MIMEType: DetectMIME(data, declared), Data: data}, nil
}

// FromBase64 decodes a bare base64 payload or a data URL.
func FromBase64(value, declared string) (Asset, error) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "data:") {
		return ParseDataURL(value)
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Asset{}, fmt.Errorf("decode base64: %w", err)
	}
	return FromBytes(raw, declared)
}

func ParseDataURL(value string) (Asset, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Asset{}, errors.New("empty data url")
	}

	const prefix = "data:"
	if !strings.HasPrefix(value, prefix) {
		return Asset{}, errors.New("not a data url")
	}

	meta, payload, ok := strings.Cut(value, ",")
	if !ok {
		return Asset{}, errors.New("invalid data url")
	}

	metaParts := strings.Split(strings.TrimPrefix(meta, prefix), ";")
	mimeType := strings.TrimSpace(metaParts[0])

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Asset{}, fmt.Errorf("decode data url: %w", err)
	}
	return FromBytes(raw, mimeType)
}

func (a Asset) IsZero() bool {
	return len(a.Data) == 0
}

func (a Asset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

func (a Asset) DataURL() string {
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = fallbackMIME
	}
	return "data:" + mimeType + ";base64," + a.Base64()
}

func (a Asset) Clone() Asset {
	if a.Data == nil {
		return Asset{MIMEType: a.MIMEType}
	}
	return Asset{MIMEType: a.MIMEType, Data: bytes.Clone(a.Data)}
}

// Extension returns a file extension (with dot) matching the media type.
func (a Asset) Extension() string {
	switch a.MIMEType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

func (a Asset) Decode() (image.Image, error) {
	if a.IsZero() {
		return nil, ErrEmpty
	}
	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.MIMEType, err)
	}
	return img, nil
}

// DetectMIME keeps a concrete declared type and sniffs the content otherwise.
func DetectMIME(data []byte, declared string) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = fallbackMIME
	}
	return mimeType
}

func stripParams(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if before, _, ok := strings.Cut(mimeType, ";"); ok {
		mimeType = strings.TrimSpace(before)
	}
	return strings.ToLower(mimeType)
}

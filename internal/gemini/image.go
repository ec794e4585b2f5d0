package gemini

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"magpie/internal/services"
)

var dataURLPrefix = regexp.MustCompile(`^data:(image/(?:png|jpeg|webp));base64,`)

// Image is binary image content with its media type.
type Image struct {
	Data     []byte
	MIMEType string
}

func (i Image) mimeType() string {
	if i.MIMEType == "" {
		return "image/png"
	}
	return i.MIMEType
}

// DataURL encodes the image as a base64 data URL.
func (i Image) DataURL() string {
	return "data:" + i.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// DecodeDataURL accepts a data URL or bare base64 and returns the image. A
// png/jpeg/webp data URL prefix sets the media type; bare base64 uses
// fallbackMIME, or image/png when that is empty.
func DecodeDataURL(value, fallbackMIME string) (Image, error) {
	value = strings.TrimSpace(value)
	mime := fallbackMIME
	if m := dataURLPrefix.FindStringSubmatch(value); m != nil {
		mime = m[1]
		value = value[len(m[0]):]
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64 image: %w: %w", services.ErrValidation, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("decode base64 image: empty payload: %w", services.ErrValidation)
	}
	return Image{Data: data, MIMEType: mime}, nil
}

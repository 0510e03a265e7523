package imageloader

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Formats registered for the default decoder: the stdlib set plus the
	// extended formats web origins commonly serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeFunc converts fetched bytes into a displayable image. It is a pure
// conversion; implementations must not retain the input slice.
type DecodeFunc func(data []byte) (image.Image, error)

// DecodeImage is the default DecodeFunc. It recognizes PNG, JPEG, GIF, WebP,
// BMP and TIFF payloads.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot decode an empty payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

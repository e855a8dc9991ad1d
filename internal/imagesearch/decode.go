package imagesearch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/starford/artselect/internal/apperr"
)

// MaxPixels bounds decoded image area: a 12 megapixel photo, about 48 MiB
// once decoded to RGBA. Larger sources are only ever scaled down to the
// canvas anyway.
const MaxPixels = 4000 * 3000

// Decode turns encoded bytes into an image, reporting the format name.
// Anything that is not a supported, sane image fails with
// apperr.ErrInvalidImage.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", apperr.ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty %s image", apperr.ErrInvalidImage, format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds pixel limit", apperr.ErrInvalidImage, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrInvalidImage, err)
	}
	return img, format, nil
}

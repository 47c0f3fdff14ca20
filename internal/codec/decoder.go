package codec

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/ftrvxmtrx/tga"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"golang.org/x/image/bmp"
)

// minImageSize is the smallest edge a decoded bitmap is scaled to
const minImageSize = 4

// roundUpThreshold biases power-of-two scaling towards rounding down
const roundUpThreshold = 1.75

// Decoder implements the Codec interface on top of the Go image decoders
type Decoder struct {
	maxSize int
}

// NewDecoder creates a decoder that clamps bitmaps to maxSize on each edge
func NewDecoder(maxSize int) *Decoder {
	if maxSize < minImageSize {
		maxSize = interfaces.DefaultMaxImageSize
	}
	return &Decoder{maxSize: maxSize}
}

// Decode reads the file at path with the decoder selected by format and
// returns RGBA pixels scaled to power-of-two dimensions
func (d *Decoder) Decode(path string, format interfaces.Format) (*interfaces.RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileMissingError(path, err)
		}
		return nil, errors.NewDecodeError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	var img image.Image
	switch format {
	case interfaces.FormatBMP:
		img, err = bmp.Decode(f)
	case interfaces.FormatTGA:
		img, err = tga.Decode(f)
		if err == nil {
			if c := components(img); c != 3 && c != 4 {
				return nil, errors.NewDecodeError(fmt.Sprintf("tga %s has %d components, want 3 or 4", path, c), nil)
			}
		}
	case interfaces.FormatJPEG:
		img, err = jpeg.Decode(f)
	case interfaces.FormatPNG:
		img, err = png.Decode(f)
	default:
		return nil, errors.NewUnsupportedFormatError(path)
	}
	if err != nil {
		return nil, errors.NewDecodeError(fmt.Sprintf("failed to decode %s", path), err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.NewDecodeError(fmt.Sprintf("%s has empty dimensions", path), nil)
	}

	rgba := d.scaleToPowerOfTwo(img)
	return &interfaces.RawImage{
		Width:      rgba.Bounds().Dx(),
		Height:     rgba.Bounds().Dy(),
		Components: 4,
		Pixels:     rgba.Pix,
		Source:     path,
	}, nil
}

// scaleToPowerOfTwo resizes img so that both edges are powers of two
func (d *Decoder) scaleToPowerOfTwo(img image.Image) *image.RGBA {
	size := img.Bounds().Size()
	w := BiasedDimension(size.X, d.maxSize)
	h := BiasedDimension(size.Y, d.maxSize)
	if w == size.X && h == size.Y {
		return clone.AsRGBA(img)
	}
	return transform.Resize(img, w, h, transform.Linear)
}

// BiasedDimension returns the power of two closest to dim, preferring the
// smaller one unless dim exceeds it by more than roundUpThreshold, and never
// exceeding maxDim
func BiasedDimension(dim, maxDim int) int {
	larger := minImageSize
	for larger < maxDim && larger < dim {
		larger *= 2
	}
	if larger > dim && larger > minImageSize {
		smaller := larger / 2
		if float64(dim)/float64(smaller) <= roundUpThreshold {
			return smaller
		}
	}
	return larger
}

// components reports how many channels the source image carries
func components(img image.Image) int {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.AlphaModel, color.Alpha16Model:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

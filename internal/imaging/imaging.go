package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is an output MIME type.
type Format string

const (
	FormatJPEG Format = "image/jpeg"
	FormatPNG  Format = "image/png"
	FormatWEBP Format = "image/webp"
)

// DefaultQuality matches the studio's compression slider default.
const DefaultQuality = 0.8

var (
	// ErrUnsupportedFormat is returned for output formats with no encoder.
	ErrUnsupportedFormat = errors.New("imaging: unsupported output format")
	// ErrInvalidOptions reports out-of-range quality, scale or width.
	ErrInvalidOptions = errors.New("imaging: invalid options")
	// ErrDecode means the input is not a JPEG, PNG, GIF or WEBP image.
	ErrDecode = errors.New("imaging: cannot decode image")
)

// Options controls Process. Quality is 0..1 and only affects JPEG output.
// Scale multiplies both dimensions; MaxWidth (when > 0) clamps the scaled
// width, keeping the aspect ratio.
type Options struct {
	Quality  float64
	Scale    float64
	Format   Format
	MaxWidth int
}

// Result is the encoded image and its final geometry.
type Result struct {
	Data   []byte
	Width  int
	Height int
	Size   int
	Format Format
}

// ParseFormat accepts a MIME type or a short name (jpg, jpeg, png, webp).
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "jpg", "jpeg", string(FormatJPEG):
		return FormatJPEG, nil
	case "png", string(FormatPNG):
		return FormatPNG, nil
	case "webp", string(FormatWEBP):
		return FormatWEBP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatWEBP:
		return ".webp"
	default:
		return ".jpg"
	}
}

func (o Options) normalize() (Options, error) {
	if o.Format == "" {
		o.Format = FormatJPEG
	}
	if o.Scale == 0 {
		o.Scale = 1
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality < 0 || o.Quality > 1 {
		return o, fmt.Errorf("%w: quality %.2f outside 0..1", ErrInvalidOptions, o.Quality)
	}
	if o.Scale < 0 || math.IsNaN(o.Scale) || math.IsInf(o.Scale, 0) {
		return o, fmt.Errorf("%w: scale %v", ErrInvalidOptions, o.Scale)
	}
	if o.MaxWidth < 0 {
		return o, fmt.Errorf("%w: max width %d", ErrInvalidOptions, o.MaxWidth)
	}
	return o, nil
}

// TargetSize computes the output dimensions for a source of w×h.
func TargetSize(w, h int, scale float64, maxWidth int) (int, int) {
	if scale <= 0 {
		scale = 1
	}
	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	if maxWidth > 0 && tw > maxWidth {
		ratio := float64(maxWidth) / float64(tw)
		tw = maxWidth
		th = int(math.Round(float64(th) * ratio))
	}
	return max(tw, 1), max(th, 1)
}

// Process decodes src (JPEG, PNG, GIF or WEBP), resizes and re-encodes it.
func Process(src io.Reader, opts Options) (Result, error) {
	opts, err := opts.normalize()
	if err != nil {
		return Result{}, err
	}
	if opts.Format != FormatJPEG && opts.Format != FormatPNG {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	bounds := img.Bounds()
	w, h := TargetSize(bounds.Dx(), bounds.Dy(), opts.Scale, opts.MaxWidth)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if opts.Format == FormatJPEG {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch opts.Format {
	case FormatJPEG:
		q := int(math.Round(opts.Quality * 100))
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: max(q, 1)}); err != nil {
			return Result{}, fmt.Errorf("imaging: encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, dst); err != nil {
			return Result{}, fmt.Errorf("imaging: encode png: %w", err)
		}
	}

	return Result{
		Data:   buf.Bytes(),
		Width:  w,
		Height: h,
		Size:   buf.Len(),
		Format: opts.Format,
	}, nil
}

// FormatBytes renders n in binary units (KiB, MiB).
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// Savings reports how much smaller processed is than original, in percent.
// Growth yields a negative value.
func Savings(original, processed int) float64 {
	if original <= 0 {
		return 0
	}
	return math.Round((1-float64(processed)/float64(original))*1000) / 10
}

// Package thumbnail turns arbitrary images into fixed-size 16:9 video thumbnails.
package thumbnail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/clipverse/backend/internal/apperr"
)

const (
	// Width and Height are the output dimensions of every thumbnail.
	Width  = 640
	Height = 360

	// Quality is the JPEG quality used for encoded thumbnails (0.9 on a 0..1 scale).
	Quality = 90

	ContentType = "image/jpeg"

	aspectW = 16
	aspectH = 9
)

var (
	// ErrDecode reports a source image that could not be decoded.
	ErrDecode = apperr.E(apperr.KindDecode, "image could not be decoded", nil)
	// ErrEncode reports a failure writing the thumbnail payload. It shares
	// the decode kind: the viewer sees the same "could not process image" notice.
	ErrEncode = apperr.E(apperr.KindDecode, "thumbnail could not be encoded", nil)
)

// Result is an encoded thumbnail ready for upload and preview.
type Result struct {
	Data       []byte
	Width      int
	Height     int
	Source     image.Rectangle
	PreviewURL string
}

// Region returns the centered 16:9 rectangle of a w x h source, relative to
// the source origin. Sources wider than 16:9 lose equal margins left and
// right; all others lose equal margins top and bottom.
func Region(w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	if w*aspectH > h*aspectW {
		srcW := clamp(int(math.Round(float64(h)*aspectW/aspectH)), 1, w)
		srcX := (w - srcW) / 2
		return image.Rect(srcX, 0, srcX+srcW, h)
	}

	srcH := clamp(int(math.Round(float64(w)*aspectH/aspectW)), 1, h)
	srcY := (h - srcH) / 2
	return image.Rect(0, srcY, w, srcY+srcH)
}

// Decode reads a JPEG, PNG, GIF or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	return img, nil
}

// Crop center-crops src to 16:9 and scales the region to exactly Width x Height.
func Crop(src image.Image) (Result, error) {
	if src == nil || src.Bounds().Empty() {
		return Result{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	bounds := src.Bounds()
	region := Region(bounds.Dx(), bounds.Dy()).Add(bounds.Min)

	dst := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)

	var buf bytes.Buffer
	if err := encode(&buf, dst); err != nil {
		return Result{}, err
	}

	return Result{
		Data:       buf.Bytes(),
		Width:      Width,
		Height:     Height,
		Source:     region,
		PreviewURL: PreviewURL(buf.Bytes()),
	}, nil
}

func encode(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: Quality}); err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return nil
}

// DecodeAndCrop is Decode followed by Crop.
func DecodeAndCrop(r io.Reader) (Result, error) {
	img, err := Decode(r)
	if err != nil {
		return Result{}, err
	}
	return Crop(img)
}

// PreviewURL renders a JPEG payload as a data URL for immediate display.
func PreviewURL(data []byte) string {
	return "data:" + ContentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

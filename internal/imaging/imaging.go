package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxDimension bounds the width and height of stored photos.
	MaxDimension = 1024
	JPEGQuality  = 85
	ContentType  = "image/jpeg"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

var decoders = map[string]func([]byte) (image.Image, error){
	"image/jpeg": func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) },
	"image/png":  func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) },
	"image/webp": func(b []byte) (image.Image, error) { return webp.Decode(bytes.NewReader(b)) },
}

// Normalize sniffs the upload, bounds it to MaxDimension and re-encodes it
// as JPEG. Transparent areas are flattened onto white.
func Normalize(data []byte) ([]byte, error) {
	detected := http.DetectContentType(data)
	decode, ok := decoders[detected]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected)
	}

	src, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales w x h down to fit in a max x max box, keeping the aspect ratio.
func fit(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		h = h * max / w
		w = max
	} else {
		w = w * max / h
		h = max
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

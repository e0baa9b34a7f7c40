package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"

	"golang.org/x/image/draw"

	"pv-go/internal/pv"
)

// DefaultLongestEdge is the thumbnail size in pixels along the longest edge.
const DefaultLongestEdge = 256

const jpegQuality = 80

// Thumbnailer decodes photos and produces JPEG thumbnails scaled to a fixed
// longest edge. Formats are whatever decoders are registered with the image
// package; unsupported formats (RAW, HEIC) produce an error and the caller
// records the photo without a thumbnail.
type Thumbnailer struct {
	longestEdge int
}

// NewThumbnailer creates a thumbnailer. longestEdge <= 0 selects the default.
func NewThumbnailer(longestEdge int) *Thumbnailer {
	if longestEdge <= 0 {
		longestEdge = DefaultLongestEdge
	}
	return &Thumbnailer{longestEdge: longestEdge}
}

// Thumbnail decodes the photo read from r and returns a scaled JPEG
// thumbnail plus the original pixel dimensions and source format.
func (t *Thumbnailer) Thumbnail(r io.Reader) (*pv.Thumbnail, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	tw, th := scaledSize(width, height, t.longestEdge)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}

	return &pv.Thumbnail{
		Bytes:  buf.Bytes(),
		Width:  width,
		Height: height,
		Format: format,
	}, nil
}

// scaledSize fits (w, h) inside a square of the given edge, preserving
// aspect ratio. Images already smaller than the edge keep their size.
func scaledSize(w, h, edge int) (int, int) {
	if w <= edge && h <= edge {
		return w, h
	}
	if w >= h {
		return edge, max(1, h*edge/w)
	}
	return max(1, w*edge/h), edge
}

// Compile-time check that Thumbnailer implements pv.Thumbnailer interface
var _ pv.Thumbnailer = (*Thumbnailer)(nil)

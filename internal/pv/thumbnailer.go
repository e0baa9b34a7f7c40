package pv

import "io"

// Thumbnail is the result of decoding a photo and scaling it down.
// Width and Height are the pixel dimensions of the original image,
// not the thumbnail.
type Thumbnail struct {
	Bytes  []byte
	Width  int
	Height int
	Format string // decoder-reported source format, e.g. "jpeg", "png"
}

// Thumbnailer decodes raw photo bytes and produces a browsable thumbnail.
type Thumbnailer interface {
	Thumbnail(r io.Reader) (*Thumbnail, error)
}

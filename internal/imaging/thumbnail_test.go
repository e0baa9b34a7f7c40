package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestThumbnail(t *testing.T) {
	thumbnailer := NewThumbnailer(256)

	thumb, err := thumbnailer.Thumbnail(bytes.NewReader(encodePNG(t, 1024, 512)))
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}

	if thumb.Width != 1024 || thumb.Height != 512 {
		t.Errorf("expected original dimensions 1024x512, got %dx%d", thumb.Width, thumb.Height)
	}
	if thumb.Format != "png" {
		t.Errorf("expected source format png, got %s", thumb.Format)
	}

	// The thumbnail itself is a JPEG scaled to the longest edge.
	img, err := jpeg.Decode(bytes.NewReader(thumb.Bytes))
	if err != nil {
		t.Fatalf("thumbnail is not decodable JPEG: %v", err)
	}
	if img.Bounds().Dx() != 256 || img.Bounds().Dy() != 128 {
		t.Errorf("expected 256x128 thumbnail, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnailNoUpscale(t *testing.T) {
	thumbnailer := NewThumbnailer(256)

	thumb, err := thumbnailer.Thumbnail(bytes.NewReader(encodePNG(t, 100, 60)))
	if err != nil {
		t.Fatal(err)
	}

	img, err := jpeg.Decode(bytes.NewReader(thumb.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 60 {
		t.Errorf("small image was rescaled to %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnailUndecodable(t *testing.T) {
	thumbnailer := NewThumbnailer(0)
	if _, err := thumbnailer.Thumbnail(strings.NewReader("not an image")); err == nil {
		t.Error("expected error for undecodable input")
	}
}

func TestScaledSize(t *testing.T) {
	cases := []struct {
		w, h, edge     int
		wantW, wantH   int
	}{
		{1024, 512, 256, 256, 128},
		{512, 1024, 256, 128, 256},
		{300, 300, 256, 256, 256},
		{100, 60, 256, 100, 60},
		{10000, 1, 256, 256, 1},
	}
	for _, tc := range cases {
		gotW, gotH := scaledSize(tc.w, tc.h, tc.edge)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("scaledSize(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tc.w, tc.h, tc.edge, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

const (
	// JPEGQuality is the fixed encoder quality for captured frames.
	JPEGQuality = 95
	// FrameMIMEType is the MIME type of every encoded frame.
	FrameMIMEType = "image/jpeg"
	// CaptureFilename is attached to camera captures, which carry no name of their own.
	CaptureFilename = "capture.jpg"
)

// Frame is an encoded camera frame.
type Frame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Facing   Facing
	Mirrored bool
}

// rasterize copies src onto an off-screen RGBA surface with the same size as
// the source frame. With mirror set the surface is flipped horizontally.
func rasterize(src image.Image, mirror bool) (*image.RGBA, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, ErrEmptyFrame
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	if mirror {
		mirrorHorizontal(dst)
	}
	return dst, nil
}

func mirrorHorizontal(img *image.RGBA) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for left, right := 0, w-1; left < right; left, right = left+1, right-1 {
			l, r := left*4, right*4
			for c := 0; c < 4; c++ {
				row[l+c], row[r+c] = row[r+c], row[l+c]
			}
		}
	}
}

func encodeFrame(src image.Image, facing Facing, mirror bool) (*Frame, error) {
	raster, err := rasterize(src, mirror)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raster, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &Frame{
		Data:     buf.Bytes(),
		MIMEType: FrameMIMEType,
		Width:    raster.Rect.Dx(),
		Height:   raster.Rect.Dy(),
		Facing:   facing,
		Mirrored: mirror,
	}, nil
}

package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/sweeney/feeding-monitor/internal/capture"
)

// JPEGEncoder compresses frames for the preview stream.
type JPEGEncoder struct {
	Quality int
}

// Encode returns f as a JPEG.
func (e JPEGEncoder) Encode(f capture.Frame) ([]byte, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, e.Quality})
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

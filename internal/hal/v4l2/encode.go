//go:build linux

package v4l2

import (
	"github.com/smazurov/camcore/internal/camera"
	vl "github.com/vladimirvivien/go4vl/v4l2"
)

func encodeJPEG(frame []byte, pix vl.PixFormat, settings camera.PhotoSettings) ([]byte, error) {
	if pix.PixelFormat != vl.PixelFmtYUYV {
		return reencodeJPEG(frame, settings)
	}
	img, err := yuyvImage(frame, int(pix.Width), int(pix.Height))
	if err != nil {
		return nil, err
	}
	return toJPEG(img, settings)
}

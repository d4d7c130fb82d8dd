package v4l2

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"strconv"
	"strings"

	"github.com/smazurov/camcore/internal/camera"
)

func jpegQuality(q camera.Quality) int {
	switch q {
	case camera.QualityLow:
		return 60
	case camera.QualityMedium:
		return 80
	default:
		return 95
	}
}

// yuyvImage wraps a packed YUYV 4:2:2 frame as an image.
func yuyvImage(frame []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("invalid yuyv frame size %dx%d", width, height)
	}
	if len(frame) < width*height*2 {
		return nil, fmt.Errorf("short yuyv frame: %d bytes for %dx%d", len(frame), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := frame[y*width*2:]
		for x := 0; x < width; x += 2 {
			px := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = px[0]
			img.Y[y*img.YStride+x+1] = px[2]
			c := y*img.CStride + x/2
			img.Cb[c] = px[1]
			img.Cr[c] = px[3]
		}
	}
	return img, nil
}

// orient applies rotation then a horizontal mirror.
func orient(src image.Image, rot camera.Rotation, mirror bool) image.Image {
	if rot == camera.Rotation0 && !mirror {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	in := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(in, in.Bounds(), src, b.Min, draw.Src)

	ow, oh := w, h
	if rot == camera.Rotation90 || rot == camera.Rotation270 {
		ow, oh = h, w
	}
	out := image.NewRGBA(image.Rect(0, 0, ow, oh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch rot {
			case camera.Rotation90:
				dx, dy = h-1-y, x
			case camera.Rotation180:
				dx, dy = w-1-x, h-1-y
			case camera.Rotation270:
				dx, dy = y, w-1-x
			default:
				dx, dy = x, y
			}
			if mirror {
				dx = ow - 1 - dx
			}
			out.SetRGBA(dx, dy, in.RGBAAt(x, y))
		}
	}
	return out
}

// toJPEG encodes a decoded frame with the capture settings applied.
func toJPEG(img image.Image, settings camera.PhotoSettings) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, orient(img, settings.Rotation, settings.Mirror), &jpeg.Options{Quality: jpegQuality(settings.Quality)}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// reencodeJPEG passes MJPEG frames through unless settings require a re-encode.
func reencodeJPEG(frame []byte, settings camera.PhotoSettings) ([]byte, error) {
	if settings.Rotation == camera.Rotation0 && !settings.Mirror && settings.Quality == camera.QualityHigh {
		return frame, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return toJPEG(img, settings)
}

func photoPath(surface string, id int32) string {
	return strings.ReplaceAll(surface, "{id}", strconv.Itoa(int(id)))
}

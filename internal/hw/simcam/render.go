package simcam

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cjeanneret/CamDeck/internal/camera"
)

// previewQuality is the JPEG quality of live frames.
const previewQuality = 80

// renderFrame draws a synthetic test pattern whose brightness follows gain
// and exposure, whose red channel follows the white balance ratio and whose
// tone curve follows gamma when enabled. An overlay line shows the frame
// counter and the measured rate.
func renderFrame(w, h int, seq uint64, p camera.Parameters, fps float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	// Gain in dB scales amplitude; exposure is linear in light.
	bright := math.Pow(10, p.GainDB/20) * p.ExposureUs / 20000 / math.Pow(10, 15.0/20)
	gamma := 1.0
	if p.GammaEnabled && p.GammaValue > 0 {
		gamma = 1 / p.GammaValue
	}
	shift := int(seq % uint64(max(w, 1)))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64((x+shift)%w) / float64(max(w-1, 1))
			fy := float64(y) / float64(max(h-1, 1))
			r := tone(fx*p.WBRedRatio/1.5*bright, gamma)
			g := tone(fy*bright, gamma)
			b := tone((1-fx)*bright, gamma)
			if p.PixelFormat == camera.Mono8 {
				l := uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
				r, g, b = l, l, l
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	text := fmt.Sprintf("#%d %.1f FPS %s", seq, fps, p.PixelFormat)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{Y: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(10), Y: fixed.I(20)},
	}
	d.DrawString(text)
	return img
}

func tone(v, gamma float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Pow(v, gamma)*255 + 0.5)
}

func encodePreview(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeImage stores img at path in the requested format.
func writeImage(path string, img image.Image, format camera.ImageFormat, quality int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create capture dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	switch format {
	case camera.PNG:
		err = png.Encode(f, img)
	case camera.JPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	default:
		err = fmt.Errorf("%w: %q", camera.ErrUnknownImageFormat, format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	return nil
}

package imagestore

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

const placeholderSize = 128

var (
	placeholderBackground = color.NRGBA{R: 0xee, G: 0xf3, B: 0xe8, A: 0xff}
	placeholderLeaf       = color.NRGBA{R: 0x4c, G: 0x8c, B: 0x3f, A: 0xff}
	placeholderPot        = color.NRGBA{R: 0xb8, G: 0x6b, B: 0x3a, A: 0xff}
)

// writePlaceholder draws a simple potted-plant icon as the default image.
func writePlaceholder(file string) error {
	img := image.NewNRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	for y := 0; y < placeholderSize; y++ {
		for x := 0; x < placeholderSize; x++ {
			img.SetNRGBA(x, y, placeholderColor(x, y))
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), uploadTempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, file); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func placeholderColor(x, y int) color.NRGBA {
	const half = placeholderSize / 2
	// pot: trapezoid in the lower third
	if y >= placeholderSize*2/3 && y < placeholderSize-8 {
		inset := (y - placeholderSize*2/3) / 3
		if x >= 36+inset && x < placeholderSize-36-inset {
			return placeholderPot
		}
	}
	// two leaves as circles above the pot
	if inCircle(x, y, half-14, half-6, 18) || inCircle(x, y, half+14, half-14, 18) {
		return placeholderLeaf
	}
	// stem
	if x >= half-2 && x <= half+2 && y >= half-10 && y < placeholderSize*2/3 {
		return placeholderLeaf
	}
	return placeholderBackground
}

func inCircle(x, y, cx, cy, r int) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}

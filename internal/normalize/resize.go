package normalize

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
)

const (
	jpegQuality = 90

	// maxSourcePixels bounds the decoded size of an upload. A small file can
	// declare dimensions whose raster would not fit in memory.
	maxSourcePixels = 50_000_000
)

// Resizer normalizes images locally: center crop to a square, then scale.
// Animated GIFs keep only their first frame.
type Resizer struct {
	Size int
}

func (r *Resizer) Name() string { return BackendLocal }

func (r *Resizer) Normalize(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, format, err := decodeFile(path)
	if err != nil {
		return err
	}

	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	b := src.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(b), draw.Src, nil)

	return writeInPlace(path, func(f *os.File) error {
		switch format {
		case "jpeg":
			return jpeg.Encode(f, dst, &jpeg.Options{Quality: jpegQuality})
		case "png":
			return png.Encode(f, dst)
		case "gif":
			return gif.Encode(f, dst, &gif.Options{NumColors: 256})
		default:
			return fmt.Errorf("unsupported image format %q", format)
		}
	})
}

func decodeFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrVanished
		}
		return nil, "", err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxSourcePixels {
		return nil, "", fmt.Errorf("%w: %s is %dx%d", ErrImageTooLarge, path, cfg.Width, cfg.Height)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

// coverRect returns the largest centered square inside b.
func coverRect(b image.Rectangle) image.Rectangle {
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

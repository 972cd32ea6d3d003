package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Loader decodes the image at path.
type Loader func(path string) (image.Image, error)

// LoadFile decodes an image file in any registered format.
func LoadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// ImageSize reads the pixel dimensions of an image file without decoding
// its pixels.
func ImageSize(path string) (image.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Point{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

// FlipTransform maps src onto a dst-sized canvas, stretched to fill it and
// mirrored vertically so the top of src lands on the last canvas row.
func FlipTransform(src, dst image.Rectangle) f64.Aff3 {
	sx := float64(dst.Dx()) / float64(src.Dx())
	sy := float64(dst.Dy()) / float64(src.Dy())
	return f64.Aff3{
		sx, 0, float64(dst.Min.X) - sx*float64(src.Min.X),
		0, -sy, float64(dst.Max.Y) + sy*float64(src.Min.Y),
	}
}

// Draw clears canvas and draws img over all of it through FlipTransform.
func Draw(canvas *image.RGBA, img image.Image) {
	bounds := canvas.Bounds()
	draw.Draw(canvas, bounds, image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.BiLinear.Transform(canvas, FlipTransform(img.Bounds(), bounds), img, img.Bounds(), draw.Src, nil)
}

package scene

import (
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// Texture is a tightly packed RGBA8 image, rows top to bottom.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

// DecodePNG decodes a PNG of any color model into RGBA8.
func DecodePNG(r io.Reader) (*Texture, error) {
	decoded, err := png.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode png")
	}

	bounds := decoded.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, bounds.Min, draw.Src)

	return &Texture{Width: bounds.Dx(), Height: bounds.Dy(), Pixels: rgba.Pix}, nil
}

func LoadPNGFile(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open texture")
	}
	defer f.Close()

	tex, err := DecodePNG(f)
	return tex, errors.Wrapf(err, "load %s", path)
}

// Checkerboard is a size x size texture of cells x cells alternating white
// and grey squares, used when no texture file is given.
func Checkerboard(size, cells int) *Texture {
	tex := &Texture{Width: size, Height: size, Pixels: make([]byte, size*size*4)}
	cell := max(size/max(cells, 1), 1)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			shade := byte(0xff)
			if (x/cell+y/cell)%2 == 1 {
				shade = 0x60
			}
			i := (y*size + x) * 4
			tex.Pixels[i], tex.Pixels[i+1], tex.Pixels[i+2], tex.Pixels[i+3] = shade, shade, shade, 0xff
		}
	}
	return tex
}

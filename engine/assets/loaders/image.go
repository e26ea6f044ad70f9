package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	"github.com/spaghettifunk/aquarium/engine/core"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

type ImageResourceParams struct {
	// Flip the rows so the first row is the bottom of the image.
	FlipY bool
}

// ImageData is a decoded image as tightly packed RGBA8 rows.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

type ImageLoader struct{}

// decodeImage reads any registered image format and converts it to RGBA8.
func decodeImage(path string, flip bool) (*image.RGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	var rgba *image.RGBA
	if flip {
		rgba = transform.FlipV(img)
	} else {
		rgba = clone.AsRGBA(img)
	}
	core.LogDebug("decoded %s image %s (%dx%d)", format, path, rgba.Rect.Dx(), rgba.Rect.Dy())
	return rgba, nil
}

func (il *ImageLoader) Load(path string, params interface{}) (*Resource, error) {
	flip := false
	if p, ok := params.(*ImageResourceParams); ok && p != nil {
		flip = p.FlipY
	}
	rgba, err := decodeImage(path, flip)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	data := &ImageData{
		Width:  uint32(rgba.Rect.Dx()),
		Height: uint32(rgba.Rect.Dy()),
		Pixels: packed(rgba),
	}
	return &Resource{
		Name:     "image",
		FullPath: path,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (il *ImageLoader) Unload(*Resource) error {
	return nil
}

// MipLevelCount is the length of a full mip chain for a width x height image.
func MipLevelCount(width, height uint32) uint32 {
	return uint32(math.Floor(math.Log2(float64(max(width, height, 1))))) + 1
}

// mipChain scales every level straight from the full size image. Level 0 is
// the image itself.
func mipChain(src *image.RGBA) [][]byte {
	width, height := uint32(src.Rect.Dx()), uint32(src.Rect.Dy())
	levels := make([][]byte, MipLevelCount(width, height))
	levels[0] = packed(src)
	for i := 1; i < len(levels); i++ {
		w, h := max(width>>i, 1), max(height>>i, 1)
		dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		levels[i] = dst.Pix
	}
	return levels
}

// packed returns the pixels without any row padding.
func packed(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == w*4 && img.Rect.Min == (image.Point{}) {
		return img.Pix[:w*h*4]
	}
	out := make([]byte, 0, w*h*4)
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		start := img.PixOffset(img.Rect.Min.X, y)
		out = append(out, img.Pix[start:start+w*4]...)
	}
	return out
}

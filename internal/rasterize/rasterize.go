// Package rasterize implements the [image:] tag's image adapter: fetch,
// flatten, resize, dither to 1-bpp, and emit a Star Line Mode raster
// command. It is consumed by internal/markup through the
// markup.ImageRasterizer interface so the compiler package itself never
// imports an HTTP client or an image codec.
package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/bvisible/CloudPRNT/internal/logger"
)

// FetchTimeout bounds the image download, per spec.md §5's 10s image
// fetch timeout.
const FetchTimeout = 10 * time.Second

// pixelWidths maps the paper width class (in mm) to the printer's raster
// pixel width, per spec.md §4.C.
var pixelWidths = map[int]int{
	58:  384,
	80:  576,
	112: 832,
}

// Dither selects the binarization strategy.
type Dither int

const (
	// DitherFloydSteinberg error-diffuses, giving photographs reasonable
	// fidelity at the cost of a busier print.
	DitherFloydSteinberg Dither = iota
	// DitherOrdered applies a fixed Bayer matrix, cheaper and more
	// predictable for logos and line art.
	DitherOrdered
	// DitherThreshold is a flat 50% cutoff, no diffusion.
	DitherThreshold
)

// Adapter implements markup.ImageRasterizer.
type Adapter struct {
	Client *http.Client
	Dither Dither
	log    *logger.Logger
}

// New returns an Adapter with an HTTP client bounded by FetchTimeout.
func New(d Dither, log *logger.Logger) *Adapter {
	return &Adapter{
		Client: &http.Client{Timeout: FetchTimeout},
		Dither: d,
		log:    log,
	}
}

// Rasterize fetches url, flattens/resizes/dithers it to the pixel width
// for paperWidthMM, and returns the printer-native raster command bytes.
func (a *Adapter) Rasterize(ctx context.Context, url string, paperWidthMM int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	img, err := a.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}

	targetWidth := pixelWidthFor(paperWidthMM)
	flattened := flattenOverWhite(img)
	resized := resizeToWidth(flattened, targetWidth)
	bitmap := a.binarize(resized)

	return encodeRaster(bitmap), nil
}

func (a *Adapter) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read body for %s: %w", url, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return img, nil
}

func pixelWidthFor(paperWidthMM int) int {
	if w, ok := pixelWidths[paperWidthMM]; ok {
		return w
	}
	return pixelWidths[80]
}

// flattenOverWhite composites img over an opaque white background,
// discarding alpha. Printers only print black or white.
func flattenOverWhite(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

// resizeToWidth scales img proportionally to targetWidth if it's wider
// than that; narrower images are left alone rather than upscaled.
func resizeToWidth(img image.Image, targetWidth int) image.Image {
	if img.Bounds().Dx() <= targetWidth {
		return img
	}
	return imaging.Resize(img, targetWidth, 0, imaging.Lanczos)
}

// bitmap is a 1-bpp, row-major, MSB-first raster: a black pixel sets its
// bit to 1, matching spec.md §4.C's raster command.
type bitmap struct {
	width, height int
	rowBytes      int
	bits          []byte
}

func (a *Adapter) binarize(img image.Image) *bitmap {
	img = imaging.Grayscale(img)

	if a.Dither != DitherThreshold {
		d := dither.NewDitherer([]color.Color{color.Black, color.White})
		if a.Dither == DitherOrdered {
			d.Mapper = dither.Bayer(8, 8, 1.0)
		} else {
			d.Matrix = dither.FloydSteinberg
		}
		img = d.DitherCopy(img)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	rowBytes := (w + 7) / 8
	bm := &bitmap{width: w, height: h, rowBytes: rowBytes, bits: make([]byte, rowBytes*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			if gray.Y < 128 {
				bm.bits[y*rowBytes+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return bm
}

func encodeRaster(bm *bitmap) []byte {
	out := make([]byte, 0, 6+len(bm.bits))
	out = append(out, 0x1B, 0x2A)
	wLo, wHi := uint16le(bm.rowBytes * 8)
	hLo, hHi := uint16le(bm.height)
	out = append(out, wLo, wHi, hLo, hHi)
	out = append(out, bm.bits...)
	return out
}

func uint16le(n int) (lo, hi byte) {
	return byte(n % 256), byte((n / 256) % 256)
}

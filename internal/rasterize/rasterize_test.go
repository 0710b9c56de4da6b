package rasterize

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPNGServer(t *testing.T, w, h int) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRasterizeProducesRasterCommand(t *testing.T) {
	t.Parallel()
	srv := testPNGServer(t, 800, 100)

	a := New(DitherThreshold, nil)
	out, err := a.Rasterize(context.Background(), srv.URL, 80)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}

	if len(out) < 6 || out[0] != 0x1B || out[1] != 0x2A {
		t.Fatalf("expected raster command prefix 1B2A, got %x", out[:min(len(out), 6)])
	}

	wLo, wHi := int(out[2]), int(out[3])
	width := wLo + wHi*256
	if width != 576 {
		t.Errorf("width = %d, want 576 (80mm pixel width)", width)
	}
}

func TestRasterizeFetchErrorPropagates(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	a := New(DitherThreshold, nil)
	if _, err := a.Rasterize(context.Background(), srv.URL, 80); err == nil {
		t.Fatalf("expected error for 404 fetch")
	}
}

func TestRasterizeNarrowImageIsNotUpscaled(t *testing.T) {
	t.Parallel()
	srv := testPNGServer(t, 100, 50)

	a := New(DitherThreshold, nil)
	out, err := a.Rasterize(context.Background(), srv.URL, 80)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	wLo, wHi := int(out[2]), int(out[3])
	width := wLo + wHi*256
	// rowBytes is byte-padded, so width may round up from 100 to a
	// multiple of 8, but must not be scaled up to 576.
	if width > 104 {
		t.Errorf("narrow image width = %d, should stay near its native size", width)
	}
}

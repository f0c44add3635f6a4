package scraper

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0x40, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/05._CB23001.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
}

func fetcherConfig(dir string) Config {
	return Config{
		UserAgent:         "test-agent",
		RequestTimeout:    5 * time.Second,
		ImageDir:          dir,
		ImageMaxDimension: 2048,
		JPEGQuality:       90,
	}
}

func TestImageFetcher_FetchStoresJPEG(t *testing.T) {
	server := imageServer(t, encodeTestJPEG(t, 100, 50))
	defer server.Close()

	f := NewImageFetcher(fetcherConfig(t.TempDir()), testLogger(t))
	localPath, width, height, err := f.Fetch(context.Background(), server.URL+"/05._CB23001.jpg", "CB23001")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if width != 100 || height != 50 {
		t.Fatalf("expected 100x50, got %dx%d", width, height)
	}
	if filepath.Base(localPath) != "CB23001_05._CB23001.jpg" {
		t.Fatalf("unexpected filename: %s", filepath.Base(localPath))
	}
}

func TestImageFetcher_FetchBoundsOversizeImages(t *testing.T) {
	server := imageServer(t, encodeTestJPEG(t, 128, 64))
	defer server.Close()

	cfg := fetcherConfig(t.TempDir())
	cfg.ImageMaxDimension = 64
	f := NewImageFetcher(cfg, testLogger(t))

	_, width, height, err := f.Fetch(context.Background(), server.URL+"/05._CB23001.jpg", "CB23001")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if width != 64 || height != 32 {
		t.Fatalf("expected bounded 64x32, got %dx%d", width, height)
	}
}

func TestImageFetcher_FetchMissingImageFails(t *testing.T) {
	server := imageServer(t, encodeTestJPEG(t, 10, 10))
	defer server.Close()

	f := NewImageFetcher(fetcherConfig(t.TempDir()), testLogger(t))
	if _, _, _, err := f.Fetch(context.Background(), server.URL+"/05._MISSING.jpg", "MISSING"); err == nil {
		t.Fatalf("expected error for missing image")
	}
}

func TestImageFetcher_Probe(t *testing.T) {
	server := imageServer(t, encodeTestJPEG(t, 10, 10))
	defer server.Close()

	f := NewImageFetcher(fetcherConfig(t.TempDir()), testLogger(t))
	if !f.Probe(context.Background(), server.URL+"/05._CB23001.jpg") {
		t.Fatalf("expected probe hit for existing image")
	}
	if f.Probe(context.Background(), server.URL+"/05._MISSING.jpg") {
		t.Fatalf("expected probe miss for absent image")
	}
}

func TestImageFilename(t *testing.T) {
	tests := []struct {
		name string
		url  string
		code string
		want string
	}{
		{"marketing path", "https://x.example/documente/marketing/Ceremony%20Suits/05._CB23001.jpg", "CB23001", "CB23001_05._CB23001.jpg"},
		{"png becomes jpg", "https://x.example/images/swatch.png", "LN24002", "LN24002_swatch.jpg"},
		{"unsafe characters replaced", "https://x.example/a%20b/c d.jpg", "AB12CD", "AB12CD_c_d.jpg"},
		{"no path", "https://x.example", "AB12CD", "AB12CD_image.jpg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := imageFilename(tc.url, tc.code); got != tc.want {
				t.Fatalf("imageFilename = %q, want %q", got, tc.want)
			}
		})
	}
}

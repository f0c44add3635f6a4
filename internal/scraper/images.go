package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/image/draw"

	"github.com/henk-ai/fabric-backend/internal/logger"
)

var unsafeFilenameRe = regexp.MustCompile(`[^\w\-.]`)

// ImageFetcher downloads swatch photos, bounds their dimensions and stores
// them as JPEG under the configured image directory.
type ImageFetcher struct {
	client *http.Client
	retry  RetryPolicy
	cfg    Config
	log    *logger.Logger
}

func NewImageFetcher(cfg Config, log *logger.Logger) *ImageFetcher {
	return &ImageFetcher{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		retry:  DefaultRetryPolicy(),
		cfg:    cfg,
		log:    log.With("component", "ImageFetcher"),
	}
}

// Probe reports whether the URL serves an image without downloading it. Used
// for constructed candidate URLs before committing to a full fetch.
func (f *ImageFetcher) Probe(ctx context.Context, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Fetch downloads one image, resizes it to fit the configured dimension cap
// and writes it to disk. Returns the stored path and decoded dimensions.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL, fabricCode string) (localPath string, width, height int, err error) {
	var body []byte
	err = f.retry.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		resp, doErr := f.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &httpStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if readErr != nil {
			return readErr
		}
		body = raw
		return nil
	})
	if err != nil {
		return "", 0, 0, err
	}

	src, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("decode image %s: %w", imageURL, err)
	}
	resized := f.bound(src)
	bounds := resized.Bounds()

	if err := os.MkdirAll(f.cfg.ImageDir, 0o755); err != nil {
		return "", 0, 0, err
	}
	localPath = filepath.Join(f.cfg.ImageDir, imageFilename(imageURL, fabricCode))
	out, err := os.Create(localPath)
	if err != nil {
		return "", 0, 0, err
	}
	defer out.Close()
	if err := jpeg.Encode(out, resized, &jpeg.Options{Quality: f.cfg.JPEGQuality}); err != nil {
		return "", 0, 0, err
	}
	return localPath, bounds.Dx(), bounds.Dy(), nil
}

// bound scales the image down with Catmull-Rom resampling when either side
// exceeds the dimension cap. Smaller images pass through untouched.
func (f *ImageFetcher) bound(src image.Image) image.Image {
	max := f.cfg.ImageMaxDimension
	if max <= 0 {
		max = 2048
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return src
	}
	scale := float64(max) / float64(w)
	if h > w {
		scale = float64(max) / float64(h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func imageFilename(imageURL, fabricCode string) string {
	base := "image"
	if parsed, err := url.Parse(imageURL); err == nil {
		if p := path.Base(parsed.Path); p != "" && p != "/" && p != "." {
			base = p
		}
	}
	name := unsafeFilenameRe.ReplaceAllString(fabricCode+"_"+base, "_")
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".jpg") && !strings.HasSuffix(lower, ".jpeg") {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
	}
	return name
}

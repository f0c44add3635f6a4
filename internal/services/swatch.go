package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

const swatchSize = 512

// Export fabric codes can carry path separators (e.g. "695.401/18").
var swatchFilenameRe = regexp.MustCompile(`[^\w\-.]`)

// Named cloth colors for swatch cards, checked in order so a compound color
// like "blue grey" always resolves the same way. Unknown color words fall
// back to a hash-derived hue so the card stays deterministic per fabric.
var swatchColors = []struct {
	word string
	c    color.NRGBA
}{
	{"black", color.NRGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff}},
	{"charcoal", color.NRGBA{R: 0x36, G: 0x45, B: 0x4f, A: 0xff}},
	{"navy", color.NRGBA{R: 0x1f, G: 0x30, B: 0x5e, A: 0xff}},
	{"burgundy", color.NRGBA{R: 0x6e, G: 0x1f, B: 0x2e, A: 0xff}},
	{"olive", color.NRGBA{R: 0x5c, G: 0x5a, B: 0x33, A: 0xff}},
	{"grey", color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}},
	{"gray", color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}},
	{"blue", color.NRGBA{R: 0x2c, G: 0x4f, B: 0x8a, A: 0xff}},
	{"brown", color.NRGBA{R: 0x6b, G: 0x4a, B: 0x2f, A: 0xff}},
	{"tan", color.NRGBA{R: 0xd2, G: 0xb4, B: 0x8c, A: 0xff}},
	{"beige", color.NRGBA{R: 0xc8, G: 0xb8, B: 0x9a, A: 0xff}},
	{"cream", color.NRGBA{R: 0xef, G: 0xe6, B: 0xd5, A: 0xff}},
	{"white", color.NRGBA{R: 0xf2, G: 0xf2, B: 0xf0, A: 0xff}},
	{"green", color.NRGBA{R: 0x3c, G: 0x5a, B: 0x3f, A: 0xff}},
	{"red", color.NRGBA{R: 0x8e, G: 0x24, B: 0x28, A: 0xff}},
}

// SwatchRenderer draws deterministic placeholder swatch cards for fabrics
// that have no downloadable catalog photo.
type SwatchRenderer struct {
	fabrics  repos.FabricRepo
	imageDir string
	fontFace font.Face
	log      *logger.Logger
}

func NewSwatchRenderer(fabrics repos.FabricRepo, log *logger.Logger) *SwatchRenderer {
	serviceLog := log.With("service", "SwatchRenderer")

	var face font.Face
	fontPath := utils.GetEnv("SWATCH_FONT", "", log)
	if fontPath != "" {
		loaded, err := loadSwatchFont(fontPath, 44)
		if err != nil {
			serviceLog.Warn("Could not load swatch font, cards will render without text", "font", fontPath, "error", err)
		} else {
			face = loaded
		}
	}

	return &SwatchRenderer{
		fabrics:  fabrics,
		imageDir: utils.GetEnv("FABRIC_IMAGE_STORAGE", "./storage/fabrics/images", log),
		fontFace: face,
		log:      serviceLog,
	}
}

func loadSwatchFont(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

// EnsureSwatch renders and registers a placeholder card for the fabric.
func (s *SwatchRenderer) EnsureSwatch(ctx context.Context, fabric *types.Fabric) error {
	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.imageDir, swatchFilenameRe.ReplaceAllString(fabric.FabricCode, "_")+"_swatch.png")
	if err := s.render(fabric, path); err != nil {
		return err
	}

	row := &types.FabricImage{
		FabricID:  fabric.ID,
		LocalPath: path,
		ImageType: "texture",
		Width:     swatchSize,
		Height:    swatchSize,
		Format:    "png",
	}
	if info, err := os.Stat(path); err == nil {
		row.FileSize = int(info.Size())
	}
	if err := s.fabrics.AddImage(ctx, nil, row); err != nil {
		return err
	}
	fabric.Images = append(fabric.Images, *row)
	return nil
}

func (s *SwatchRenderer) render(fabric *types.Fabric, path string) error {
	base := swatchColor(fabric)

	dc := gg.NewContext(swatchSize, swatchSize)
	dc.SetColor(base)
	dc.DrawRectangle(0, 0, swatchSize, swatchSize)
	dc.Fill()

	// Darker footer band carries the label.
	footer := color.NRGBA{
		R: uint8(float64(base.R) * 0.6),
		G: uint8(float64(base.G) * 0.6),
		B: uint8(float64(base.B) * 0.6),
		A: 0xff,
	}
	dc.SetColor(footer)
	dc.DrawRectangle(0, swatchSize*0.78, swatchSize, swatchSize*0.22)
	dc.Fill()

	if s.fontFace != nil {
		dc.SetFontFace(s.fontFace)
		dc.SetColor(labelColor(base))
		tw, th := dc.MeasureString(fabric.FabricCode)
		dc.DrawString(fabric.FabricCode, (swatchSize-tw)/2, swatchSize*0.89+th/2)
	}
	return dc.SavePNG(path)
}

// swatchColor picks the card color from the fabric's color word, falling back
// to a hash of the fabric code so the same fabric always gets the same card.
func swatchColor(fabric *types.Fabric) color.NRGBA {
	lower := strings.ToLower(fabric.Color)
	for _, entry := range swatchColors {
		if strings.Contains(lower, entry.word) {
			return entry.c
		}
	}
	sum := sha256.Sum256([]byte(fabric.FabricCode))
	return color.NRGBA{
		R: 0x30 + sum[0]%0x60,
		G: 0x30 + sum[1]%0x60,
		B: 0x30 + sum[2]%0x60,
		A: 0xff,
	}
}

func labelColor(base color.NRGBA) color.NRGBA {
	luma := 0.299*float64(base.R) + 0.587*float64(base.G) + 0.114*float64(base.B)
	if luma > 160 {
		return color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	}
	return color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
}

package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/scraper"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

// ErrInvalidCSV marks an export whose header row does not carry the expected
// columns.
var ErrInvalidCSV = errors.New("csv export missing required columns")

// csvColumns maps the export's German headers onto record fields. The
// supplier exports with semicolon delimiters and this fixed column set.
var csvColumns = map[string]string{
	"Stoffcode":                       "fabric_code",
	"Stofflieferant":                  "supplier",
	"Herstellungsland":                "origin",
	"Zusammensetzung":                 "composition",
	"Gewicht":                         "weight",
	"Stofffarbe":                      "color",
	"Stoffart":                        "pattern",
	"Produkttyp":                      "produkttyp",
	"Saison":                          "season",
	"Status":                          "stock_status",
	"Lager":                           "lager",
	"Bestellte Menge":                 "bestellte_menge",
	"Voraussichtliches Empfangsdatum": "empfangsdatum",
	"Eigenschaften":                   "eigenschaften",
	"Katalog":                         "katalog",
	"MTO":                             "mto",
	"Preiskat":                        "preskat",
	"fabric_img":                      "fabric_img",
}

// productTypeCategories maps the export's Produkttyp onto the catalog's
// marketing categories.
var productTypeCategories = map[string]string{
	"Anzug":    "Business Suits",
	"Smoking":  "Ceremony Suits",
	"Freizeit": "Casual Wear",
	"Sommer":   "Seasonal",
	"Winter":   "Seasonal",
}

// csvImageCategoryDirs extends the listing parser's marketing directories
// with the Seasonal directory the CSV categories can point at.
var csvImageCategoryDirs = []string{"Ceremony Suits", "Business Suits", "Casual Wear", "Seasonal"}

var (
	csvWeightRe = regexp.MustCompile(`\d+`)
	csvNameRe   = regexp.MustCompile(`[A-Z]+`)
)

// csvSeasonNames translates the export's season words (German or English,
// possibly slash-joined) into season values.
var csvSeasonNames = map[string]string{
	"sommer":    types.SeasonSummer,
	"summer":    types.SeasonSummer,
	"winter":    types.SeasonWinter,
	"fruehling": types.SeasonSpring,
	"frühling":  types.SeasonSpring,
	"frühjahr":  types.SeasonSpring,
	"spring":    types.SeasonSpring,
	"herbst":    types.SeasonFall,
	"autumn":    types.SeasonFall,
	"fall":      types.SeasonFall,
}

// csvFabricRow is one parsed export line before persistence.
type csvFabricRow struct {
	FabricCode    string
	Supplier      string
	Origin        string
	Composition   string
	Weight        int
	Color         string
	Pattern       string
	Category      string
	Seasons       []string
	StockStatus   string
	PriceCategory string
	ImageURL      string
	Extra         map[string]string
}

// CSVImportSummary reports one import run.
type CSVImportSummary struct {
	RowsRead         int            `json:"rows_read"`
	RowsSkipped      int            `json:"rows_skipped"`
	FabricsImported  int            `json:"fabrics_imported"`
	FabricsFailed    int            `json:"fabrics_failed"`
	ImagesDownloaded int            `json:"images_downloaded"`
	ImagesMissing    int            `json:"images_missing"`
	SwatchesCreated  int            `json:"swatches_created"`
	Process          ProcessSummary `json:"process"`
	Degraded         bool           `json:"degraded"`
}

// CSVImporter is the second ingestion channel beside the harvester: it takes
// the supplier's CSV export, downloads swatch images, persists fabrics and
// runs them through the embedding processor. Unlike the scraped listing, the
// export carries origin, price category, product type and season columns.
type CSVImporter struct {
	fabrics      repos.FabricRepo
	processor    *FabricProcessor
	images       *scraper.ImageFetcher
	swatches     *SwatchRenderer
	imageBaseURL string
	log          *logger.Logger
}

func NewCSVImporter(
	fabrics repos.FabricRepo,
	processor *FabricProcessor,
	images *scraper.ImageFetcher,
	swatches *SwatchRenderer,
	log *logger.Logger,
) *CSVImporter {
	return &CSVImporter{
		fabrics:      fabrics,
		processor:    processor,
		images:       images,
		swatches:     swatches,
		imageBaseURL: utils.GetEnv("FORMENS_IMAGE_BASE_URL", "https://b2b2.formens.ro/documente/marketing", log),
		log:          log.With("service", "CSVImporter"),
	}
}

// Import runs the full channel: parse rows, download images, upsert fabrics,
// backfill swatches, embed. Individual row failures degrade the run instead
// of aborting it.
func (s *CSVImporter) Import(ctx context.Context, r io.Reader) (CSVImportSummary, error) {
	var summary CSVImportSummary

	rows, skipped, err := parseCSVExport(r)
	if err != nil {
		return summary, err
	}
	summary.RowsRead = len(rows) + skipped
	summary.RowsSkipped = skipped
	summary.Degraded = skipped > 0
	s.log.Info("Parsed fabric export", "rows", len(rows), "skipped", skipped)

	persisted := make([]*types.Fabric, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		images := s.downloadImages(ctx, row)
		if len(images) > 0 {
			summary.ImagesDownloaded += len(images)
		} else {
			summary.ImagesMissing++
		}

		fabric, upsertErr := s.upsertRow(ctx, row, images)
		if upsertErr != nil {
			summary.FabricsFailed++
			summary.Degraded = true
			s.log.Warn("Failed to persist exported fabric", "fabric_code", row.FabricCode, "error", upsertErr)
			continue
		}
		summary.FabricsImported++
		persisted = append(persisted, fabric)
	}

	if s.swatches != nil {
		for _, fabric := range persisted {
			if len(fabric.Images) > 0 {
				continue
			}
			if swatchErr := s.swatches.EnsureSwatch(ctx, fabric); swatchErr != nil {
				s.log.Warn("Failed to render placeholder swatch", "fabric_code", fabric.FabricCode, "error", swatchErr)
				continue
			}
			summary.SwatchesCreated++
		}
	}

	processSummary, err := s.processor.Process(ctx, persisted)
	summary.Process = processSummary
	if processSummary.ChunksFailed > 0 {
		summary.Degraded = true
	}
	if err != nil {
		return summary, err
	}
	s.log.Info("CSV import complete",
		"fabrics_imported", summary.FabricsImported,
		"images_downloaded", summary.ImagesDownloaded,
		"chunks_embedded", processSummary.ChunksEmbedded,
		"degraded", summary.Degraded,
	)
	return summary, nil
}

// parseCSVExport reads the semicolon-delimited export. Rows without a fabric
// code are counted and skipped; a header without the code column fails the
// whole file.
func parseCSVExport(r io.Reader) ([]csvFabricRow, int, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	index := map[string]int{}
	for i, name := range header {
		if field, ok := csvColumns[strings.TrimSpace(name)]; ok {
			index[field] = i
		}
	}
	if _, ok := index["fabric_code"]; !ok {
		return nil, 0, fmt.Errorf("%w: no Stoffcode column", ErrInvalidCSV)
	}

	get := func(record []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []csvFabricRow
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		code := get(record, "fabric_code")
		if code == "" {
			skipped++
			continue
		}

		produkttyp := get(record, "produkttyp")
		row := csvFabricRow{
			FabricCode:    code,
			Supplier:      get(record, "supplier"),
			Origin:        get(record, "origin"),
			Composition:   get(record, "composition"),
			Weight:        parseCSVWeight(get(record, "weight")),
			Color:         get(record, "color"),
			Pattern:       get(record, "pattern"),
			Category:      mapCSVCategory(produkttyp),
			Seasons:       mapCSVSeasons(get(record, "season")),
			StockStatus:   get(record, "stock_status"),
			PriceCategory: get(record, "preskat"),
			ImageURL:      get(record, "fabric_img"),
			Extra:         map[string]string{},
		}
		for _, field := range []string{"lager", "bestellte_menge", "empfangsdatum", "eigenschaften", "katalog", "mto", "produkttyp", "preskat"} {
			if v := get(record, field); v != "" {
				row.Extra[field] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// parseCSVWeight pulls the number out of values like "250 g/m²".
func parseCSVWeight(raw string) int {
	m := csvWeightRe.FindString(raw)
	if m == "" {
		return 0
	}
	weight, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return weight
}

func mapCSVCategory(produkttyp string) string {
	if category, ok := productTypeCategories[produkttyp]; ok {
		return category
	}
	return "Business Suits"
}

// mapCSVSeasons splits slash- or comma-joined season words and translates
// them; words that map to nothing are dropped.
func mapCSVSeasons(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '/' || r == ',' }) {
		season, ok := csvSeasonNames[strings.ToLower(strings.TrimSpace(part))]
		if !ok || seen[season] {
			continue
		}
		seen[season] = true
		out = append(out, season)
	}
	return out
}

// csvFabricName extracts a display name from codes like "695.401/VITALE";
// codes without letters fall back to the supplier.
func csvFabricName(code, supplier string) string {
	if name := csvNameRe.FindString(code); name != "" {
		return name
	}
	return supplier
}

// downloadImages tries the export's direct image URL first, then the
// constructed marketing-directory candidates with the row's category ahead
// of the rest. The first successful download wins.
func (s *CSVImporter) downloadImages(ctx context.Context, row csvFabricRow) []types.FabricImage {
	if s.images == nil {
		return nil
	}
	for _, candidate := range s.candidateURLs(row) {
		localPath, width, height, err := s.images.Fetch(ctx, candidate, row.FabricCode)
		if err != nil {
			continue
		}
		return []types.FabricImage{{
			ImageURL:  candidate,
			LocalPath: localPath,
			ImageType: "primary",
			Width:     width,
			Height:    height,
			Format:    "jpeg",
		}}
	}
	return nil
}

func (s *CSVImporter) candidateURLs(row csvFabricRow) []string {
	var urls []string
	if row.ImageURL != "" {
		urls = append(urls, row.ImageURL)
	}
	name := csvFabricName(row.FabricCode, "")
	if name == "" {
		name = row.FabricCode
	}
	dirs := append([]string{row.Category}, csvImageCategoryDirs...)
	seen := map[string]bool{}
	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		urls = append(urls, fmt.Sprintf("%s/%s/05._%s.jpg", s.imageBaseURL, url.PathEscape(dir), name))
	}
	return urls
}

func (s *CSVImporter) upsertRow(ctx context.Context, row csvFabricRow, images []types.FabricImage) (*types.Fabric, error) {
	fabric := &types.Fabric{
		FabricCode:    row.FabricCode,
		Name:          csvFabricName(row.FabricCode, row.Supplier),
		Composition:   row.Composition,
		Weight:        row.Weight,
		Color:         row.Color,
		Pattern:       row.Pattern,
		Category:      row.Category,
		StockStatus:   row.StockStatus,
		Supplier:      row.Supplier,
		Origin:        row.Origin,
		PriceCategory: row.PriceCategory,
		Description:   csvDescription(row),
		ScrapeDate:    time.Now().UTC(),
	}
	if len(row.Extra) > 0 {
		if meta, err := json.Marshal(row.Extra); err == nil {
			fabric.Metadata = meta
		}
	}

	seasons := row.Seasons
	if len(seasons) == 0 && row.Weight > 0 {
		seasons = inferSeasonsFromWeight(row.Weight)
	}
	return s.fabrics.Upsert(ctx, nil, fabric, seasons, images)
}

// csvDescription renders the short summary line the export rows get in place
// of a scraped description.
func csvDescription(row csvFabricRow) string {
	var parts []string
	if row.Composition != "" {
		parts = append(parts, row.Composition)
	}
	if row.Weight > 0 {
		parts = append(parts, fmt.Sprintf("%dg/m²", row.Weight))
	}
	if row.Color != "" {
		parts = append(parts, row.Color)
	}
	return strings.Join(parts, ", ")
}

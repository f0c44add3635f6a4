package scraper

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/henk-ai/fabric-backend/internal/logger"
)

// maxPages caps a single harvest walk so a pathological pagination loop
// cannot run forever.
const maxPages = 500

// HarvestSummary reports what one harvest run saw, including the parts that
// were skipped or failed.
type HarvestSummary struct {
	PagesFetched     int `json:"pages_fetched"`
	PagesFailed      int `json:"pages_failed"`
	RecordsParsed    int `json:"records_parsed"`
	RecordsFailed    int `json:"records_failed"`
	ImagesDownloaded int `json:"images_downloaded"`
}

// Harvester walks the catalog listing pages sequentially and turns them into
// deduplicated fabric records with downloaded swatch images.
type Harvester struct {
	gateway *Gateway
	parser  *Parser
	images  *ImageFetcher
	cfg     Config
	log     *logger.Logger
}

func NewHarvester(cfg Config, gateway *Gateway, log *logger.Logger) *Harvester {
	return &Harvester{
		gateway: gateway,
		parser:  NewParser(cfg),
		images:  NewImageFetcher(cfg, log),
		cfg:     cfg,
		log:     log.With("component", "Harvester"),
	}
}

// Harvest fetches listing pages until the catalog runs out, maxRecords is
// reached or the context is cancelled. Records dedupe by fabric code with the
// later occurrence winning. Credential failures abort the walk; individual
// page or container failures are counted and skipped.
func (h *Harvester) Harvest(ctx context.Context, maxRecords int) ([]FabricRecord, HarvestSummary, error) {
	var summary HarvestSummary
	byCode := map[string]int{}
	var records []FabricRecord

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, summary, err
		}
		if maxRecords > 0 && len(records) >= maxRecords {
			break
		}

		pageHTML, err := h.gateway.FetchPage(ctx, page)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) || ctx.Err() != nil {
				return records, summary, err
			}
			summary.PagesFailed++
			h.log.Warn("Skipping listing page after fetch failure", "page", page, "error", err)
			continue
		}
		summary.PagesFetched++

		pageRecords, parseErrs := h.parser.ParsePage(pageHTML, page)
		summary.RecordsFailed += len(parseErrs)
		for _, perr := range parseErrs {
			h.log.Warn("Skipping malformed fabric container", "error", perr)
		}
		if len(pageRecords) == 0 {
			h.log.Info("Listing page had no fabric records, stopping walk", "page", page)
			break
		}

		for _, record := range pageRecords {
			if maxRecords > 0 && len(records) >= maxRecords && byCode[record.FabricCode] == 0 {
				continue
			}
			if idx, seen := byCode[record.FabricCode]; seen {
				records[idx-1] = record
				continue
			}
			records = append(records, record)
			byCode[record.FabricCode] = len(records)
		}
		summary.RecordsParsed = len(records)
	}
	summary.RecordsParsed = len(records)

	downloaded, err := h.downloadImages(ctx, records)
	summary.ImagesDownloaded = downloaded
	if err != nil {
		return records, summary, err
	}
	return records, summary, nil
}

// downloadImages fetches swatch photos for every record through a bounded
// errgroup. Constructed candidate URLs are probed first and only the first
// reachable one is kept. Download failures degrade the record, not the run.
func (h *Harvester) downloadImages(ctx context.Context, records []FabricRecord) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.ImageConcurrency)

	var mu sync.Mutex
	downloaded := 0

	for i := range records {
		record := &records[i]
		g.Go(func() error {
			urls := h.reachableURLs(gctx, record)
			for _, imageURL := range urls {
				localPath, width, height, err := h.images.Fetch(gctx, imageURL, record.FabricCode)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					h.log.Warn("Failed to download fabric image", "fabric_code", record.FabricCode, "url", imageURL, "error", err)
					continue
				}
				asset := ImageAsset{
					URL:       imageURL,
					LocalPath: localPath,
					Width:     width,
					Height:    height,
					Format:    "jpeg",
				}
				if info, statErr := os.Stat(localPath); statErr == nil {
					asset.FileSize = int(info.Size())
				}
				mu.Lock()
				record.Images = append(record.Images, asset)
				downloaded++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return downloaded, err
	}
	return downloaded, nil
}

// reachableURLs narrows a record's candidate image URLs. Inline listing
// images are trusted; constructed marketing-directory guesses are probed and
// only the first hit survives.
func (h *Harvester) reachableURLs(ctx context.Context, record *FabricRecord) []string {
	if len(record.ImageURLs) == 0 {
		return nil
	}
	constructed := len(record.ImageURLs) == len(imageCategoryDirs) && looksConstructed(record.ImageURLs[0], record.FabricCode)
	if !constructed {
		return record.ImageURLs
	}
	for _, candidate := range record.ImageURLs {
		if h.images.Probe(ctx, candidate) {
			return []string{candidate}
		}
	}
	return nil
}

func looksConstructed(imageURL, code string) bool {
	return code != "" && strings.Contains(imageURL, "05._"+code)
}

package services

import (
	"context"
	"encoding/json"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/scraper"
	"github.com/henk-ai/fabric-backend/internal/types"
)

// PipelineSummary reports one end-to-end harvest run.
type PipelineSummary struct {
	Harvest         scraper.HarvestSummary `json:"harvest"`
	Process         ProcessSummary         `json:"process"`
	FabricsUpserted int                    `json:"fabrics_upserted"`
	FabricsFailed   int                    `json:"fabrics_failed"`
	SwatchesCreated int                    `json:"swatches_created"`
	Degraded        bool                   `json:"degraded"`
}

// HarvestPipeline orchestrates harvest, persistence and embedding as one
// restartable run. Every write is keyed, so a rerun after partial failure
// converges instead of duplicating.
type HarvestPipeline struct {
	harvester *scraper.Harvester
	fabrics   repos.FabricRepo
	processor *FabricProcessor
	swatches  *SwatchRenderer
	log       *logger.Logger
}

func NewHarvestPipeline(
	harvester *scraper.Harvester,
	fabrics repos.FabricRepo,
	processor *FabricProcessor,
	swatches *SwatchRenderer,
	log *logger.Logger,
) *HarvestPipeline {
	return &HarvestPipeline{
		harvester: harvester,
		fabrics:   fabrics,
		processor: processor,
		swatches:  swatches,
		log:       log.With("service", "HarvestPipeline"),
	}
}

// Run executes harvest → upsert → chunk/embed. Individual fabric failures
// degrade the run instead of aborting it; the summary says what was skipped.
func (p *HarvestPipeline) Run(ctx context.Context, maxRecords int) (PipelineSummary, error) {
	var summary PipelineSummary

	records, harvestSummary, err := p.harvester.Harvest(ctx, maxRecords)
	summary.Harvest = harvestSummary
	if err != nil {
		return summary, err
	}
	summary.Degraded = harvestSummary.PagesFailed > 0 || harvestSummary.RecordsFailed > 0
	p.log.Info("Harvest complete",
		"records", len(records),
		"pages_fetched", harvestSummary.PagesFetched,
		"pages_failed", harvestSummary.PagesFailed,
	)

	persisted := make([]*types.Fabric, 0, len(records))
	for _, record := range records {
		fabric, upsertErr := p.upsertRecord(ctx, record)
		if upsertErr != nil {
			summary.FabricsFailed++
			summary.Degraded = true
			p.log.Warn("Failed to persist harvested fabric", "fabric_code", record.FabricCode, "error", upsertErr)
			continue
		}
		summary.FabricsUpserted++
		persisted = append(persisted, fabric)
	}

	if p.swatches != nil {
		for _, fabric := range persisted {
			if len(fabric.Images) > 0 {
				continue
			}
			if swatchErr := p.swatches.EnsureSwatch(ctx, fabric); swatchErr != nil {
				p.log.Warn("Failed to render placeholder swatch", "fabric_code", fabric.FabricCode, "error", swatchErr)
				continue
			}
			summary.SwatchesCreated++
		}
	}

	processSummary, err := p.processor.Process(ctx, persisted)
	summary.Process = processSummary
	if processSummary.ChunksFailed > 0 {
		summary.Degraded = true
	}
	if err != nil {
		return summary, err
	}
	p.log.Info("Pipeline run complete",
		"fabrics_upserted", summary.FabricsUpserted,
		"chunks_embedded", processSummary.ChunksEmbedded,
		"degraded", summary.Degraded,
	)
	return summary, nil
}

func (p *HarvestPipeline) upsertRecord(ctx context.Context, record scraper.FabricRecord) (*types.Fabric, error) {
	fabric := &types.Fabric{
		FabricCode:       record.FabricCode,
		Name:             record.Name,
		Composition:      record.Composition,
		Weight:           record.Weight,
		Color:            record.Color,
		Pattern:          record.Pattern,
		StockStatus:      record.StockStatus,
		Supplier:         record.Supplier,
		Description:      record.Description,
		CareInstructions: record.CareInstructions,
		Category:         record.Category,
		ScrapeDate:       record.ScrapeDate,
	}
	if len(record.ImageURLs) > 0 {
		if meta, err := json.Marshal(map[string]any{"source_image_urls": record.ImageURLs}); err == nil {
			fabric.Metadata = meta
		}
	}

	seasons := record.Seasons
	if len(seasons) == 0 && record.Weight > 0 {
		seasons = inferSeasonsFromWeight(record.Weight)
	}

	images := make([]types.FabricImage, 0, len(record.Images))
	for i, asset := range record.Images {
		imageType := "additional"
		if i == 0 {
			imageType = "primary"
		}
		images = append(images, types.FabricImage{
			ImageURL:  asset.URL,
			LocalPath: asset.LocalPath,
			ImageType: imageType,
			Width:     asset.Width,
			Height:    asset.Height,
			FileSize:  asset.FileSize,
			Format:    asset.Format,
		})
	}

	return p.fabrics.Upsert(ctx, nil, fabric, seasons, images)
}

package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/scraper"
	"github.com/henk-ai/fabric-backend/internal/types"
)

func TestPipeline_UpsertRecordMapsHarvestFields(t *testing.T) {
	db := testDB(t)
	log := testLogger(t)
	fabrics := repos.NewFabricRepo(db, log)

	p := &HarvestPipeline{fabrics: fabrics, log: log}

	record := scraper.FabricRecord{
		FabricCode:  "CB23001",
		Name:        "Wool Twill",
		Composition: "100% Wool",
		Weight:      400,
		Color:       "Navy",
		Pattern:     "Herringbone",
		StockStatus: "In Stock",
		Supplier:    "Formens",
		ScrapeDate:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		ImageURLs:   []string{"https://example.com/a.jpg"},
		Images: []scraper.ImageAsset{
			{URL: "https://example.com/a.jpg", LocalPath: "/tmp/a.jpg", Width: 800, Height: 600, Format: "jpeg"},
			{URL: "https://example.com/b.jpg", LocalPath: "/tmp/b.jpg", Width: 400, Height: 300, Format: "jpeg"},
		},
	}

	fabric, err := p.upsertRecord(context.Background(), record)
	if err != nil {
		t.Fatalf("upsertRecord: %v", err)
	}
	if fabric.Name != "Wool Twill" || fabric.Weight != 400 || fabric.Color != "Navy" {
		t.Fatalf("attributes not mapped: %+v", fabric)
	}

	// No explicit seasons on the record, so the weight infers fall/winter.
	seasonSet := map[string]bool{}
	for _, s := range fabric.SeasonNames() {
		seasonSet[s] = true
	}
	if len(seasonSet) != 2 || !seasonSet[types.SeasonFall] || !seasonSet[types.SeasonWinter] {
		t.Fatalf("expected inferred fall/winter, got %v", fabric.SeasonNames())
	}

	if len(fabric.Images) != 2 {
		t.Fatalf("expected 2 image rows, got %d", len(fabric.Images))
	}
	var primary, additional int
	for _, img := range fabric.Images {
		switch img.ImageType {
		case "primary":
			primary++
		case "additional":
			additional++
		}
	}
	if primary != 1 || additional != 1 {
		t.Fatalf("expected first image primary and rest additional, got %+v", fabric.Images)
	}

	var meta map[string]any
	if err := json.Unmarshal(fabric.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if _, ok := meta["source_image_urls"]; !ok {
		t.Fatalf("source image urls missing from metadata: %v", meta)
	}
}

func TestPipeline_UpsertRecordKeepsExplicitSeasons(t *testing.T) {
	db := testDB(t)
	log := testLogger(t)
	fabrics := repos.NewFabricRepo(db, log)
	p := &HarvestPipeline{fabrics: fabrics, log: log}

	record := scraper.FabricRecord{
		FabricCode: "LN24002",
		Weight:     400,
		Seasons:    []string{types.SeasonSummer},
	}
	fabric, err := p.upsertRecord(context.Background(), record)
	if err != nil {
		t.Fatalf("upsertRecord: %v", err)
	}
	seasons := fabric.SeasonNames()
	if len(seasons) != 1 || seasons[0] != types.SeasonSummer {
		t.Fatalf("explicit seasons must win over weight inference, got %v", seasons)
	}
}

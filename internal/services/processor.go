package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

// FabricChunk is one embeddable text view of a fabric before persistence.
type FabricChunk struct {
	FabricCode string
	ChunkID    string
	ChunkType  string
	Content    string
	Metadata   map[string]any
}

// ProcessSummary reports one processing run, including degraded items.
type ProcessSummary struct {
	FabricsProcessed int `json:"fabrics_processed"`
	ChunksBuilt      int `json:"chunks_built"`
	ChunksEmbedded   int `json:"chunks_embedded"`
	ChunksFailed     int `json:"chunks_failed"`
}

type ProcessorConfig struct {
	BatchSize     int
	Concurrency   int
	WindowSize    int
	WindowOverlap int
	Aggregation   string // "first" or "mean"
}

func LoadProcessorConfig(log *logger.Logger) ProcessorConfig {
	return ProcessorConfig{
		BatchSize:     utils.GetEnvAsInt("EMBED_BATCH_SIZE", 32, log),
		Concurrency:   utils.GetEnvAsInt("EMBED_CONCURRENCY", 4, log),
		WindowSize:    utils.GetEnvAsInt("EMBED_WINDOW_SIZE", 500, log),
		WindowOverlap: utils.GetEnvAsInt("EMBED_WINDOW_OVERLAP", 50, log),
		Aggregation:   utils.GetEnv("EMBED_AGGREGATION", "first", log),
	}
}

type embedItem struct {
	fabricID uuid.UUID
	chunk    FabricChunk
}

// FabricProcessor turns persisted fabrics into chunked, embedded knowledge.
type FabricProcessor struct {
	client     OpenAIClient
	embeddings repos.FabricEmbeddingRepo
	cfg        ProcessorConfig
	log        *logger.Logger
}

func NewFabricProcessor(client OpenAIClient, embeddings repos.FabricEmbeddingRepo, cfg ProcessorConfig, log *logger.Logger) *FabricProcessor {
	return &FabricProcessor{
		client:     client,
		embeddings: embeddings,
		cfg:        cfg,
		log:        log.With("service", "FabricProcessor"),
	}
}

type weightBand struct {
	name    string
	min     int
	max     int
	seasons []string
}

// Band edges are half-open: a 250g fabric is medium, not lightweight.
var weightBands = []weightBand{
	{"lightweight", 0, 250, []string{types.SeasonSpring, types.SeasonSummer}},
	{"medium", 250, 350, []string{types.SeasonSpring, types.SeasonFall}},
	{"heavyweight", 350, 600, []string{types.SeasonFall, types.SeasonWinter}},
}

var fabricCompositions = []string{
	"wool", "cotton", "linen", "silk", "polyester",
	"wool_blend", "cotton_blend", "cashmere",
	"mohair", "alpaca", "viscose", "synthetic",
}

var fabricPatterns = []string{
	"solid", "striped", "checked", "plaid",
	"herringbone", "houndstooth", "pinstripe",
	"windowpane", "birdseye", "twill", "textured",
}

var fabricFinishes = []string{
	"matte", "shiny", "semi_gloss", "brushed",
	"smooth", "textured", "velvet", "satin",
}

// Keyed lookup stays ordered so chunk text is deterministic when a category
// name happens to carry more than one keyword.
var categoryOccasions = []struct {
	key       string
	occasions []string
}{
	{"ceremony", []string{"wedding", "formal_event", "gala"}},
	{"business", []string{"business", "office", "professional"}},
	{"casual", []string{"casual", "smart_casual", "weekend"}},
	{"seasonal", []string{"varied"}},
}

// occasionsForCategory matches catalog category names ("Business Suits",
// "Casual Wear") as well as bare keywords.
func occasionsForCategory(category string) ([]string, bool) {
	lowered := strings.ToLower(category)
	for _, entry := range categoryOccasions {
		if strings.Contains(lowered, entry.key) {
			return entry.occasions, true
		}
	}
	return nil, false
}

// BuildChunks renders the four text views of a fabric. Output is
// deterministic for a given fabric; a view whose source fields are all empty
// is omitted rather than padded with invented defaults.
func (p *FabricProcessor) BuildChunks(fabric *types.Fabric) []FabricChunk {
	var chunks []FabricChunk
	appendChunk := func(chunkType, content string) {
		if content == "" {
			return
		}
		chunks = append(chunks, FabricChunk{
			FabricCode: fabric.FabricCode,
			ChunkID:    types.ChunkID(fabric.FabricCode, chunkType),
			ChunkType:  chunkType,
			Content:    content,
			Metadata:   p.chunkMetadata(fabric, chunkType),
		})
	}
	appendChunk(types.ChunkTypeCharacteristics, p.buildCharacteristics(fabric))
	appendChunk(types.ChunkTypeVisual, p.buildVisual(fabric))
	appendChunk(types.ChunkTypeUsage, p.buildUsage(fabric))
	appendChunk(types.ChunkTypeTechnical, p.buildTechnical(fabric))
	return chunks
}

func (p *FabricProcessor) buildCharacteristics(fabric *types.Fabric) string {
	parts := []string{fmt.Sprintf("Fabric Code: %s", fabric.FabricCode)}

	if fabric.Name != "" && fabric.Name != fabric.FabricCode {
		parts = append(parts, fmt.Sprintf("Name: %s", fabric.Name))
	}
	if fabric.Composition != "" {
		parts = append(parts, fmt.Sprintf("Composition: %s", fabric.Composition))
	} else if inferred := inferComposition(fabric); inferred != "" {
		parts = append(parts, fmt.Sprintf("Composition: %s", inferred))
	}
	if fabric.Weight > 0 {
		parts = append(parts, fmt.Sprintf("Weight: %dg/m²", fabric.Weight))
		if category := categorizeWeight(fabric.Weight); category != "" {
			parts = append(parts, fmt.Sprintf("Weight Category: %s", category))
		}
	}
	if fabric.Description != "" {
		parts = append(parts, fmt.Sprintf("Description: %s", fabric.Description))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, " | ")
}

func (p *FabricProcessor) buildVisual(fabric *types.Fabric) string {
	parts := []string{fmt.Sprintf("Fabric Code: %s", fabric.FabricCode)}

	if fabric.Color != "" {
		parts = append(parts, fmt.Sprintf("Color: %s", fabric.Color))
	}
	if fabric.Pattern != "" {
		parts = append(parts, fmt.Sprintf("Pattern: %s", fabric.Pattern))
	} else if inferred := inferPattern(fabric); inferred != "" {
		parts = append(parts, fmt.Sprintf("Pattern: %s", inferred))
	}
	if finish := inferFinish(fabric); finish != "" {
		parts = append(parts, fmt.Sprintf("Finish: %s", finish))
	}
	if n := len(fabric.Images); n > 0 {
		parts = append(parts, fmt.Sprintf("Has %d reference image(s)", n))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, " | ")
}

func (p *FabricProcessor) buildUsage(fabric *types.Fabric) string {
	parts := []string{fmt.Sprintf("Fabric Code: %s", fabric.FabricCode)}

	if seasons := fabric.SeasonNames(); len(seasons) > 0 {
		parts = append(parts, fmt.Sprintf("Seasons: %s", strings.Join(seasons, ", ")))
	} else if fabric.Weight > 0 {
		if inferred := inferSeasonsFromWeight(fabric.Weight); len(inferred) > 0 {
			parts = append(parts, fmt.Sprintf("Recommended Seasons: %s", strings.Join(inferred, ", ")))
		}
	}
	if fabric.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", fabric.Category))
		if occasions, ok := occasionsForCategory(fabric.Category); ok {
			parts = append(parts, fmt.Sprintf("Suitable Occasions: %s", strings.Join(occasions, ", ")))
		}
	}
	if recs := styleRecommendations(fabric); recs != "" {
		parts = append(parts, fmt.Sprintf("Style Recommendations: %s", recs))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, " | ")
}

func (p *FabricProcessor) buildTechnical(fabric *types.Fabric) string {
	parts := []string{fmt.Sprintf("Fabric Code: %s", fabric.FabricCode)}

	if fabric.CareInstructions != "" {
		parts = append(parts, fmt.Sprintf("Care: %s", fabric.CareInstructions))
	} else if care := generateCareInstructions(fabric); care != "" {
		parts = append(parts, fmt.Sprintf("Care Instructions: %s", care))
	}
	if fabric.Supplier != "" {
		parts = append(parts, fmt.Sprintf("Supplier: %s", fabric.Supplier))
	}
	if fabric.Origin != "" {
		parts = append(parts, fmt.Sprintf("Origin: %s", fabric.Origin))
	}
	if fabric.StockStatus != "" {
		parts = append(parts, fmt.Sprintf("Stock Status: %s", fabric.StockStatus))
	}
	if durability := assessDurability(fabric); durability != "" {
		parts = append(parts, fmt.Sprintf("Durability: %s", durability))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, " | ")
}

func (p *FabricProcessor) chunkMetadata(fabric *types.Fabric, chunkType string) map[string]any {
	meta := map[string]any{
		"fabric_code": fabric.FabricCode,
		"chunk_type":  chunkType,
		"supplier":    fabric.Supplier,
	}
	if !fabric.ScrapeDate.IsZero() {
		meta["scrape_date"] = fabric.ScrapeDate.Format(time.RFC3339)
	}
	switch chunkType {
	case types.ChunkTypeCharacteristics:
		meta["composition"] = fabric.Composition
		meta["weight"] = fabric.Weight
		if fabric.Weight > 0 {
			meta["weight_category"] = categorizeWeight(fabric.Weight)
		}
	case types.ChunkTypeVisual:
		meta["color"] = fabric.Color
		pattern := fabric.Pattern
		if pattern == "" {
			pattern = inferPattern(fabric)
		}
		meta["pattern"] = pattern
		meta["has_images"] = len(fabric.Images) > 0
	case types.ChunkTypeUsage:
		seasons := fabric.SeasonNames()
		if len(seasons) == 0 && fabric.Weight > 0 {
			seasons = inferSeasonsFromWeight(fabric.Weight)
		}
		meta["seasons"] = seasons
		meta["category"] = fabric.Category
		if occasions, ok := occasionsForCategory(fabric.Category); ok {
			meta["occasions"] = occasions
		}
	case types.ChunkTypeTechnical:
		meta["stock_status"] = fabric.StockStatus
		meta["origin"] = fabric.Origin
	}
	return meta
}

func inferFromWordList(fabric *types.Fabric, words []string) string {
	text := strings.ToLower(fabric.Name + " " + fabric.Description)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, word := range words {
		spaced := strings.ReplaceAll(word, "_", " ")
		joined := strings.ReplaceAll(word, "_", "")
		if strings.Contains(text, spaced) || strings.Contains(text, joined) {
			return titleCase(spaced)
		}
	}
	return ""
}

func inferComposition(fabric *types.Fabric) string {
	return inferFromWordList(fabric, fabricCompositions)
}

func inferPattern(fabric *types.Fabric) string {
	return inferFromWordList(fabric, fabricPatterns)
}

func inferFinish(fabric *types.Fabric) string {
	text := strings.ToLower(fabric.Name + " " + fabric.Description)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, finish := range fabricFinishes {
		spaced := strings.ReplaceAll(finish, "_", " ")
		if strings.Contains(text, spaced) {
			return titleCase(spaced)
		}
	}
	return ""
}

func categorizeWeight(weight int) string {
	for _, band := range weightBands {
		if weight >= band.min && weight < band.max {
			return titleCase(band.name)
		}
	}
	return "Unknown"
}

func inferSeasonsFromWeight(weight int) []string {
	for _, band := range weightBands {
		if weight >= band.min && weight < band.max {
			return band.seasons
		}
	}
	return nil
}

func styleRecommendations(fabric *types.Fabric) string {
	var recs []string
	if fabric.Weight > 0 {
		switch {
		case fabric.Weight < 250:
			recs = append(recs, "ideal for unlined or half-lined jackets")
		case fabric.Weight < 350:
			recs = append(recs, "versatile for year-round suits")
		default:
			recs = append(recs, "excellent for structured winter suits")
		}
	}
	pattern := strings.ToLower(fabric.Pattern)
	if pattern == "" {
		pattern = strings.ToLower(inferPattern(fabric))
	}
	switch pattern {
	case "striped", "pinstripe":
		recs = append(recs, "professional business look")
	case "checked", "plaid":
		recs = append(recs, "smart casual or country style")
	case "solid":
		recs = append(recs, "timeless classic elegance")
	}
	return strings.Join(recs, ", ")
}

func generateCareInstructions(fabric *types.Fabric) string {
	composition := fabric.Composition
	if composition == "" {
		composition = inferComposition(fabric)
	}
	if composition == "" {
		return "Professional dry cleaning recommended"
	}
	lower := strings.ToLower(composition)
	switch {
	case strings.Contains(lower, "wool"):
		return "Dry clean only, steam to remove wrinkles, store with moth protection"
	case strings.Contains(lower, "linen"):
		return "Dry clean or gentle hand wash, iron while damp, store in breathable garment bag"
	case strings.Contains(lower, "cotton"):
		return "Dry clean or machine wash cold, tumble dry low, iron as needed"
	case strings.Contains(lower, "silk"):
		return "Dry clean only, avoid direct sunlight, store in cool dry place"
	default:
		return "Dry clean recommended, follow care label instructions"
	}
}

func assessDurability(fabric *types.Fabric) string {
	composition := fabric.Composition
	if composition == "" {
		composition = inferComposition(fabric)
	}
	if composition == "" {
		return "Good"
	}
	lower := strings.ToLower(composition)
	switch {
	case strings.Contains(lower, "wool") && !strings.Contains(lower, "blend"):
		return "Excellent - natural resilience and longevity"
	case strings.Contains(lower, "polyester") || strings.Contains(lower, "synthetic"):
		return "Very Good - wrinkle-resistant and durable"
	case strings.Contains(lower, "linen"):
		return "Good - durable but prone to wrinkling"
	case strings.Contains(lower, "cotton"):
		return "Good - comfortable but may wrinkle"
	default:
		return "Good"
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Process chunks and embeds the given fabrics, upserting vectors keyed by
// chunk id. Batch failures degrade to per-item embedding; items that still
// fail are counted and excluded, never fatal for the run.
func (p *FabricProcessor) Process(ctx context.Context, fabrics []*types.Fabric) (ProcessSummary, error) {
	var summary ProcessSummary

	var items []embedItem
	for _, fabric := range fabrics {
		chunks := p.BuildChunks(fabric)
		if len(chunks) > 0 {
			summary.FabricsProcessed++
		}
		for _, chunk := range chunks {
			items = append(items, embedItem{fabricID: fabric.ID, chunk: chunk})
		}
	}
	summary.ChunksBuilt = len(items)
	if len(items) == 0 {
		return summary, nil
	}

	batchSize := p.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 32
	}
	conc := p.cfg.Concurrency
	if conc < 1 {
		conc = 1
	}

	var embedded, failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		g.Go(func() error {
			vecs, err := p.embedBatch(gctx, batch)
			if err != nil {
				return err
			}

			rows := make([]*types.FabricEmbedding, 0, len(batch))
			for i, item := range batch {
				if vecs[i] == nil {
					atomic.AddInt32(&failed, 1)
					continue
				}
				row := &types.FabricEmbedding{
					FabricID:  item.fabricID,
					ChunkID:   item.chunk.ChunkID,
					ChunkType: item.chunk.ChunkType,
					Content:   item.chunk.Content,
					Model:     p.client.EmbedModel(),
				}
				if err := row.SetVector(vecs[i]); err != nil {
					return err
				}
				if meta, mErr := json.Marshal(item.chunk.Metadata); mErr == nil {
					row.Metadata = meta
				}
				rows = append(rows, row)
			}
			if len(rows) == 0 {
				return nil
			}
			if err := p.embeddings.Upsert(gctx, nil, rows); err != nil {
				return err
			}
			atomic.AddInt32(&embedded, int32(len(rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		summary.ChunksEmbedded = int(embedded)
		summary.ChunksFailed = int(failed)
		return summary, err
	}
	summary.ChunksEmbedded = int(embedded)
	summary.ChunksFailed = int(failed)
	return summary, nil
}

// embedBatch returns one vector per item, nil where the item could not be
// embedded. A whole-batch failure falls back to per-item calls so a single
// poisoned text cannot sink its batch mates.
func (p *FabricProcessor) embedBatch(ctx context.Context, batch []embedItem) ([][]float32, error) {
	out := make([][]float32, len(batch))

	oversize := false
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.chunk.Content
		if len([]rune(item.chunk.Content)) > p.windowSize() {
			oversize = true
		}
	}

	if !oversize {
		vecs, err := p.client.Embed(ctx, texts)
		if err == nil {
			copy(out, vecs)
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn("Batch embedding failed, retrying items individually", "batch_size", len(batch), "error", err)
	}

	for i, item := range batch {
		vec, err := p.embedText(ctx, item.chunk.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Warn("Skipping chunk after embedding failure", "chunk_id", item.chunk.ChunkID, "error", err)
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// embedText embeds one text, splitting it into overlapping windows when it
// exceeds the window size. The chunk is represented by its first window's
// vector unless mean aggregation is configured.
func (p *FabricProcessor) embedText(ctx context.Context, text string) ([]float32, error) {
	windows := splitTextWindows(text, p.windowSize(), p.cfg.WindowOverlap)
	if len(windows) == 0 {
		return nil, fmt.Errorf("empty chunk text")
	}

	if len(windows) == 1 || p.cfg.Aggregation != "mean" {
		vecs, err := p.client.Embed(ctx, windows[:1])
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedding count mismatch (got %d want 1)", len(vecs))
		}
		if len(windows) > 1 {
			p.log.Debug("Oversize chunk represented by first window", "windows", len(windows))
		}
		return vecs[0], nil
	}

	vecs, err := p.client.Embed(ctx, windows)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(windows) {
		return nil, fmt.Errorf("embedding count mismatch (got %d want %d)", len(vecs), len(windows))
	}
	weights := make([]float64, len(windows))
	for i, w := range windows {
		weights[i] = float64(len([]rune(w)))
	}
	avg := averageEmbeddingWeighted(vecs, weights)
	if len(avg) == 0 {
		return nil, fmt.Errorf("empty aggregate embedding")
	}
	p.log.Debug("Oversize chunk mean-pooled across windows", "windows", len(windows))
	return avg, nil
}

func (p *FabricProcessor) windowSize() int {
	if p.cfg.WindowSize < 1 {
		return 500
	}
	return p.cfg.WindowSize
}

// splitTextWindows cuts text into rune windows of the given size, each window
// starting overlap runes before the previous one ended.
func splitTextWindows(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if size < 1 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap
	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}

func averageEmbeddingWeighted(vecs [][]float32, weights []float64) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	if dim == 0 {
		return nil
	}
	acc := make([]float64, dim)
	var total float64
	for i, v := range vecs {
		if len(v) != dim {
			continue
		}
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		total += w
		for j, f := range v {
			acc[j] += float64(f) * w
		}
	}
	if total <= 0 {
		out := make([]float32, dim)
		copy(out, vecs[0])
		return out
	}
	out := make([]float32, dim)
	for i := range acc {
		out[i] = float32(acc[i] / total)
	}
	return out
}

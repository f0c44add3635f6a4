package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

// ErrUnknownFabric is returned when a requested fabric code does not exist in
// the catalog. The check runs before any image call is made.
var ErrUnknownFabric = errors.New("unknown fabric code")

// Generation stages, used for logging and failure context.
const (
	stageSpecReceived    = "SPEC_RECEIVED"
	stageFabricsResolved = "FABRICS_RESOLVED"
	stagePromptBuilt     = "PROMPT_BUILT"
	stageImageRequested  = "IMAGE_REQUESTED"
	stagePersisted       = "PERSISTED"
)

// OutfitSpec is the client's outfit request.
type OutfitSpec struct {
	Occasion           string   `json:"occasion"`
	Season             string   `json:"season"`
	StylePreferences   []string `json:"style_preferences"`
	ColorPreferences   []string `json:"color_preferences"`
	PatternPreferences []string `json:"pattern_preferences"`
	FabricCodes        []string `json:"fabric_codes"`
	AdditionalNotes    string   `json:"additional_notes"`
}

// VariantResult reports one run of a multi-variant generation.
type VariantResult struct {
	Outfit *types.GeneratedOutfit `json:"outfit,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

var variantStyles = [][]string{
	{"classic", "timeless"},
	{"modern", "contemporary"},
	{"bold", "distinctive"},
}

var occasionDescriptions = map[string]string{
	"wedding":      "elegant wedding attire, formal ceremony suit",
	"business":     "professional business suit, corporate attire",
	"formal_event": "black-tie formal evening wear",
	"gala":         "sophisticated gala evening suit",
	"casual":       "smart casual tailored outfit",
	"smart_casual": "refined smart casual ensemble",
	"office":       "modern office suit, business professional",
	"weekend":      "relaxed weekend tailored look",
}

var seasonDescriptions = map[string]string{
	types.SeasonSpring: "spring/summer season, lighter construction",
	types.SeasonSummer: "summer season, breathable fabric, unlined or half-lined",
	types.SeasonFall:   "fall/autumn season, transitional weight",
	types.SeasonWinter: "winter season, warm and structured",
}

// OutfitService drives outfit image generation from spec to persisted row.
type OutfitService struct {
	client      OpenAIClient
	recommender *RecommendationService
	fabrics     repos.FabricRepo
	outfits     repos.GeneratedOutfitRepo
	httpClient  *http.Client
	outputDir   string
	log         *logger.Logger

	now func() time.Time
}

func NewOutfitService(
	client OpenAIClient,
	recommender *RecommendationService,
	fabrics repos.FabricRepo,
	outfits repos.GeneratedOutfitRepo,
	log *logger.Logger,
) *OutfitService {
	return &OutfitService{
		client:      client,
		recommender: recommender,
		fabrics:     fabrics,
		outfits:     outfits,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		outputDir:   utils.GetEnv("OUTFIT_IMAGE_STORAGE", "./storage/outfits", log),
		log:         log.With("service", "OutfitService"),
		now:         time.Now,
	}
}

// Generate runs one outfit through the generation pipeline: resolve fabrics,
// build the prompt, request the image, store the artifact and persist the
// outfit with its fabric associations. useRAG controls whether missing
// fabrics are filled from the recommendation engine.
func (s *OutfitService) Generate(ctx context.Context, spec OutfitSpec, useRAG bool) (*types.GeneratedOutfit, error) {
	stage := stageSpecReceived
	s.log.Info("Generating outfit", "occasion", spec.Occasion, "season", spec.Season, "use_rag", useRAG)

	fabrics, err := s.resolveFabrics(ctx, spec, useRAG)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	stage = stageFabricsResolved
	if len(fabrics) == 0 {
		// A general prompt still produces a usable visual.
		s.log.Warn("No suitable fabrics resolved, generating with general prompt")
	}

	prompt := BuildPrompt(spec, fabrics)
	stage = stagePromptBuilt
	s.log.Debug("Outfit prompt built", "prompt_len", len(prompt))

	stage = stageImageRequested
	image, err := s.client.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	outfitID := s.outfitID(spec)
	localPath, err := s.storeImage(ctx, image, outfitID)
	if err != nil {
		// The provider accepted the prompt; losing the local copy should
		// not lose the outfit row.
		s.log.Warn("Failed to store outfit image locally", "outfit_id", outfitID, "error", err)
		localPath = ""
	}

	outfit, err := s.persist(ctx, spec, fabrics, outfitID, prompt, image, localPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stagePersisted, err)
	}
	s.log.Info("Outfit generated", "outfit_id", outfitID, "stage", stagePersisted)
	return outfit, nil
}

// GenerateVariants runs n independent generations with rotated style
// preferences. A failed variant is reported in its slot; successful ones are
// never rolled back.
func (s *OutfitService) GenerateVariants(ctx context.Context, spec OutfitSpec, n int) []VariantResult {
	if n <= 0 {
		n = len(variantStyles)
	}
	results := make([]VariantResult, 0, n)
	for i := 0; i < n; i++ {
		variant := spec
		variant.FabricCodes = nil
		if i < len(variantStyles) {
			variant.StylePreferences = variantStyles[i]
		}
		outfit, err := s.Generate(ctx, variant, true)
		if err != nil {
			s.log.Warn("Outfit variant failed", "variant", i+1, "error", err)
			results = append(results, VariantResult{Error: err.Error()})
			continue
		}
		results = append(results, VariantResult{Outfit: outfit})
	}
	return results
}

// GenerateShowcase builds a single-fabric spec from the fabric's own
// properties and generates without retrieval grounding.
func (s *OutfitService) GenerateShowcase(ctx context.Context, fabricCode string) (*types.GeneratedOutfit, error) {
	fabric, err := s.fabrics.GetByCode(ctx, nil, fabricCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFabric, fabricCode)
	}

	occasion := fabric.Category
	if occasion == "" {
		occasion = "business"
	}
	season := types.SeasonSpring
	if seasons := fabric.SeasonNames(); len(seasons) > 0 {
		season = seasons[0]
	}
	spec := OutfitSpec{
		Occasion:         occasion,
		Season:           season,
		StylePreferences: []string{"elegant", "refined"},
		FabricCodes:      []string{fabric.FabricCode},
		AdditionalNotes:  fmt.Sprintf("Showcasing fabric %s", fabric.FabricCode),
	}
	if fabric.Color != "" {
		spec.ColorPreferences = []string{fabric.Color}
	}
	if fabric.Pattern != "" {
		spec.PatternPreferences = []string{fabric.Pattern}
	}
	return s.Generate(ctx, spec, false)
}

// resolveFabrics turns explicit codes into fabric rows, or fills from the
// recommendation engine in RAG mode. Unknown explicit codes are terminal.
func (s *OutfitService) resolveFabrics(ctx context.Context, spec OutfitSpec, useRAG bool) ([]*types.Fabric, error) {
	if len(spec.FabricCodes) > 0 {
		fabrics, err := s.fabrics.GetByCodes(ctx, nil, spec.FabricCodes)
		if err != nil {
			return nil, err
		}
		found := map[string]bool{}
		for _, f := range fabrics {
			found[f.FabricCode] = true
		}
		for _, code := range spec.FabricCodes {
			if !found[code] {
				return nil, fmt.Errorf("%w: %s", ErrUnknownFabric, code)
			}
		}
		return fabrics, nil
	}
	if !useRAG {
		return nil, nil
	}

	prefs := RecommendationPrefs{
		Occasion:           spec.Occasion,
		Season:             spec.Season,
		StylePreferences:   spec.StylePreferences,
		ColorPreferences:   spec.ColorPreferences,
		PatternPreferences: spec.PatternPreferences,
	}
	matches, _, err := s.recommender.Recommend(ctx, "", prefs, 3)
	if err != nil {
		s.log.Warn("RAG fabric resolution failed, continuing with general prompt", "error", err)
		return nil, nil
	}
	fabrics := make([]*types.Fabric, 0, len(matches))
	for _, m := range matches {
		fabrics = append(fabrics, m.Fabric)
	}
	return fabrics, nil
}

// BuildPrompt renders the image prompt for a spec. It is a pure function:
// identical inputs always produce identical prompts.
func BuildPrompt(spec OutfitSpec, fabrics []*types.Fabric) string {
	parts := []string{"Professional fashion photography of a complete men's tailored outfit,"}

	occasion := strings.ToLower(spec.Occasion)
	if desc, ok := occasionDescriptions[occasion]; ok {
		parts = append(parts, desc)
	} else {
		parts = append(parts, fmt.Sprintf("%s outfit", spec.Occasion))
	}

	if len(fabrics) > 0 {
		var descriptions []string
		for _, fabric := range fabrics[:minInt(len(fabrics), 2)] {
			if desc := fabricDescription(fabric); desc != "" {
				descriptions = append(descriptions, desc)
			}
		}
		if len(descriptions) > 0 {
			parts = append(parts, fmt.Sprintf("made from %s", strings.Join(descriptions, ", ")))
		}
	}

	if len(spec.ColorPreferences) > 0 {
		colors := strings.Join(spec.ColorPreferences[:minInt(len(spec.ColorPreferences), 3)], ", ")
		parts = append(parts, fmt.Sprintf("in %s tones", colors))
	}
	if len(spec.PatternPreferences) > 0 {
		patterns := strings.Join(spec.PatternPreferences[:minInt(len(spec.PatternPreferences), 2)], ", ")
		parts = append(parts, fmt.Sprintf("with %s pattern", patterns))
	}
	if desc, ok := seasonDescriptions[strings.ToLower(spec.Season)]; ok {
		parts = append(parts, desc)
	}
	if len(spec.StylePreferences) > 0 {
		styles := strings.Join(spec.StylePreferences[:minInt(len(spec.StylePreferences), 3)], ", ")
		parts = append(parts, fmt.Sprintf("%s style", styles))
	}
	if spec.AdditionalNotes != "" {
		parts = append(parts, spec.AdditionalNotes)
	}

	parts = append(parts, "displayed on a mannequin or laid flat, studio lighting, high-end fashion photography, detailed texture visible, professional styling, luxury menswear aesthetic")

	prompt := strings.Join(parts, " ")
	if len(prompt) > 1000 {
		prompt = prompt[:997] + "..."
	}
	return prompt
}

func fabricDescription(fabric *types.Fabric) string {
	var parts []string
	if fabric.Composition != "" {
		parts = append(parts, strings.ToLower(fabric.Composition))
	}
	if fabric.Weight > 0 {
		switch {
		case fabric.Weight < 250:
			parts = append(parts, "lightweight")
		case fabric.Weight < 350:
			parts = append(parts, "medium-weight")
		default:
			parts = append(parts, "heavyweight")
		}
	}
	if fabric.Pattern != "" {
		parts = append(parts, strings.ToLower(fabric.Pattern))
	}
	if fabric.Color != "" {
		parts = append(parts, strings.ToLower(fabric.Color))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("premium %s fabric", fabric.FabricCode)
	}
	return strings.Join(parts, " ")
}

func (s *OutfitService) outfitID(spec OutfitSpec) string {
	timestamp := s.now().Format("20060102_150405")
	occasion := strings.ToUpper(spec.Occasion)
	if len(occasion) > 4 {
		occasion = occasion[:4]
	}
	season := strings.ToUpper(spec.Season)
	if len(season) > 2 {
		season = season[:2]
	}
	return fmt.Sprintf("OUTFIT_%s_%s_%s", occasion, season, timestamp)
}

// storeImage writes the generated artifact as PNG under the output dir,
// decoding the inline payload or downloading the hosted URL.
func (s *OutfitService) storeImage(ctx context.Context, image *GeneratedImage, outfitID string) (string, error) {
	var data []byte
	switch {
	case image.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(image.B64JSON)
		if err != nil {
			return "", fmt.Errorf("decode image payload: %w", err)
		}
		data = decoded
	case image.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, image.URL, nil)
		if err != nil {
			return "", err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("image download status %s", resp.Status)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return "", err
		}
	default:
		return "", errors.New("generated image carried no payload")
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.outputDir, outfitID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *OutfitService) persist(ctx context.Context, spec OutfitSpec, fabrics []*types.Fabric, outfitID, prompt string, image *GeneratedImage, localPath string) (*types.GeneratedOutfit, error) {
	outfit := &types.GeneratedOutfit{
		OutfitID:        outfitID,
		Occasion:        spec.Occasion,
		Season:          spec.Season,
		AdditionalNotes: spec.AdditionalNotes,
		Prompt:          prompt,
		RevisedPrompt:   image.RevisedPrompt,
		ImageURL:        image.URL,
		LocalImagePath:  localPath,
		GeneratedAt:     s.now().UTC(),
	}
	outfit.StylePreferences = mustJSON(spec.StylePreferences)
	outfit.ColorPreferences = mustJSON(spec.ColorPreferences)
	outfit.PatternPreferences = mustJSON(spec.PatternPreferences)
	outfit.GenerationMetadata = mustJSON(map[string]string{
		"model": image.Model,
		"size":  image.Size,
	})

	associations := make([]types.OutfitFabric, 0, len(fabrics))
	for _, fabric := range fabrics {
		associations = append(associations, types.OutfitFabric{
			FabricID:   fabric.ID,
			FabricCode: fabric.FabricCode,
		})
	}
	return s.outfits.Create(ctx, nil, outfit, associations)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

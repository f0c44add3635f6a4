package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/henk-ai/fabric-backend/internal/repos"
	"github.com/henk-ai/fabric-backend/internal/types"
)

func TestBuildPrompt_KnownOccasionAndSeason(t *testing.T) {
	spec := OutfitSpec{
		Occasion:         "wedding",
		Season:           "winter",
		StylePreferences: []string{"classic"},
		ColorPreferences: []string{"navy"},
	}
	prompt := BuildPrompt(spec, nil)

	if !strings.HasPrefix(prompt, "Professional fashion photography of a complete men's tailored outfit,") {
		t.Fatalf("prompt missing base line: %q", prompt)
	}
	for _, want := range []string{
		"elegant wedding attire, formal ceremony suit",
		"in navy tones",
		"winter season, warm and structured",
		"classic style",
		"luxury menswear aesthetic",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %q", want, prompt)
		}
	}
}

func TestBuildPrompt_UnknownOccasionFallsThrough(t *testing.T) {
	prompt := BuildPrompt(OutfitSpec{Occasion: "regatta", Season: "summer"}, nil)
	if !strings.Contains(prompt, "regatta outfit") {
		t.Fatalf("expected literal occasion fallback: %q", prompt)
	}
}

func TestBuildPrompt_ClampsPreferenceLists(t *testing.T) {
	spec := OutfitSpec{
		Occasion:           "business",
		Season:             "spring",
		ColorPreferences:   []string{"navy", "grey", "brown", "green"},
		PatternPreferences: []string{"herringbone", "pinstripe", "plaid"},
		StylePreferences:   []string{"modern", "sharp", "minimal", "bold"},
	}
	prompt := BuildPrompt(spec, nil)

	if !strings.Contains(prompt, "in navy, grey, brown tones") {
		t.Fatalf("expected first 3 colors only: %q", prompt)
	}
	if strings.Contains(prompt, "green") {
		t.Fatalf("fourth color must be dropped: %q", prompt)
	}
	if !strings.Contains(prompt, "with herringbone, pinstripe pattern") {
		t.Fatalf("expected first 2 patterns only: %q", prompt)
	}
	if strings.Contains(prompt, "plaid") {
		t.Fatalf("third pattern must be dropped: %q", prompt)
	}
	if !strings.Contains(prompt, "modern, sharp, minimal style") || strings.Contains(prompt, "bold") {
		t.Fatalf("expected first 3 styles only: %q", prompt)
	}
}

func TestBuildPrompt_UsesAtMostTwoFabrics(t *testing.T) {
	fabrics := []*types.Fabric{
		{FabricCode: "CB23001", Composition: "100% Wool", Weight: 400, Color: "Navy"},
		{FabricCode: "LN24002", Composition: "100% Linen", Weight: 190, Pattern: "Solid"},
		{FabricCode: "CT24003", Composition: "100% Cotton"},
	}
	prompt := BuildPrompt(OutfitSpec{Occasion: "business", Season: "fall"}, fabrics)

	if !strings.Contains(prompt, "made from 100% wool heavyweight navy, 100% linen lightweight solid") {
		t.Fatalf("unexpected fabric description: %q", prompt)
	}
	if strings.Contains(prompt, "cotton") {
		t.Fatalf("third fabric must be dropped: %q", prompt)
	}
}

func TestBuildPrompt_CapsAtThousandCharacters(t *testing.T) {
	spec := OutfitSpec{
		Occasion:        "wedding",
		Season:          "winter",
		AdditionalNotes: strings.Repeat("long note ", 200),
	}
	prompt := BuildPrompt(spec, nil)
	if len(prompt) != 1000 {
		t.Fatalf("expected capped length 1000, got %d", len(prompt))
	}
	if !strings.HasSuffix(prompt, "...") {
		t.Fatalf("capped prompt must end with ellipsis: %q", prompt[980:])
	}
}

func TestBuildPrompt_IsDeterministic(t *testing.T) {
	spec := OutfitSpec{
		Occasion:         "gala",
		Season:           "fall",
		StylePreferences: []string{"bold"},
		AdditionalNotes:  "peak lapels",
	}
	if BuildPrompt(spec, nil) != BuildPrompt(spec, nil) {
		t.Fatalf("identical specs must produce identical prompts")
	}
}

func TestFabricDescription_FallsBackToCode(t *testing.T) {
	if got := fabricDescription(&types.Fabric{FabricCode: "XX99001"}); got != "premium XX99001 fabric" {
		t.Fatalf("unexpected fallback description: %q", got)
	}
}

func TestOutfitID_Format(t *testing.T) {
	s := &OutfitService{now: func() time.Time {
		return time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC)
	}}

	got := s.outfitID(OutfitSpec{Occasion: "wedding", Season: "winter"})
	if got != "OUTFIT_WEDD_WI_20260826_150405" {
		t.Fatalf("unexpected outfit id: %q", got)
	}

	got = s.outfitID(OutfitSpec{Occasion: "gala", Season: "fall"})
	if got != "OUTFIT_GALA_FA_20260826_150405" {
		t.Fatalf("short occasion must not be padded: %q", got)
	}
}

type outfitFixture struct {
	svc     *OutfitService
	client  *fakeOpenAI
	fabrics repos.FabricRepo
	outfits repos.GeneratedOutfitRepo
	wool    *types.Fabric
}

func newOutfitFixture(t *testing.T) *outfitFixture {
	t.Helper()
	db := testDB(t)
	log := testLogger(t)
	fabrics := repos.NewFabricRepo(db, log)
	embeddings := repos.NewFabricEmbeddingRepo(db, log)
	recs := repos.NewFabricRecommendationRepo(db, log)
	outfits := repos.NewGeneratedOutfitRepo(db, log)

	wool := seedFabric(t, fabrics, &types.Fabric{
		FabricCode: "CB23001", Name: "Wool Twill", Composition: "100% Wool", Weight: 400,
		Color: "Navy", Category: "business",
	}, []string{types.SeasonWinter})
	seedEmbedding(t, embeddings, wool, types.ChunkTypeCharacteristics, []float32{1, 0, 0})

	client := &fakeOpenAI{}
	recommender := NewRecommendationService(client, nil, fabrics, embeddings, recs, RecommendationConfig{
		TopK:                5,
		SimilarityThreshold: 0.1,
		RecommendThreshold:  0.1,
	}, log)

	t.Setenv("OUTFIT_IMAGE_STORAGE", t.TempDir())
	svc := NewOutfitService(client, recommender, fabrics, outfits, log)
	svc.now = func() time.Time {
		return time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	}
	return &outfitFixture{svc: svc, client: client, fabrics: fabrics, outfits: outfits, wool: wool}
}

func TestGenerate_PersistsOutfitWithAssociations(t *testing.T) {
	f := newOutfitFixture(t)

	spec := OutfitSpec{
		Occasion:    "business",
		Season:      "winter",
		FabricCodes: []string{"CB23001"},
	}
	outfit, err := f.svc.Generate(context.Background(), spec, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if outfit.OutfitID != "OUTFIT_BUSI_WI_20260826_120000" {
		t.Fatalf("unexpected outfit id: %q", outfit.OutfitID)
	}
	if outfit.Prompt == "" || outfit.RevisedPrompt == "" {
		t.Fatalf("prompt fields not persisted: %+v", outfit)
	}
	if len(outfit.Fabrics) != 1 || outfit.Fabrics[0].FabricCode != "CB23001" {
		t.Fatalf("fabric association missing: %+v", outfit.Fabrics)
	}
	if outfit.Fabrics[0].UsageRole != types.DefaultUsageRole {
		t.Fatalf("expected defaulted usage role, got %q", outfit.Fabrics[0].UsageRole)
	}
	if outfit.LocalImagePath == "" {
		t.Fatalf("expected stored image path")
	}
	if _, err := os.Stat(outfit.LocalImagePath); err != nil {
		t.Fatalf("stored image missing on disk: %v", err)
	}

	reread, err := f.outfits.GetByOutfitID(context.Background(), nil, outfit.OutfitID)
	if err != nil {
		t.Fatalf("GetByOutfitID: %v", err)
	}
	if len(reread.Fabrics) != 1 {
		t.Fatalf("association not persisted: %+v", reread.Fabrics)
	}
}

func TestGenerate_UnknownFabricAbortsBeforeImageCall(t *testing.T) {
	f := newOutfitFixture(t)
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		t.Fatalf("image generation must not run for unknown fabric codes")
		return nil, nil
	}

	spec := OutfitSpec{
		Occasion:    "business",
		Season:      "winter",
		FabricCodes: []string{"CB23001", "NOPE999"},
	}
	_, err := f.svc.Generate(context.Background(), spec, false)
	if !errors.Is(err, ErrUnknownFabric) {
		t.Fatalf("expected ErrUnknownFabric, got %v", err)
	}
	if f.client.imageCalls != 0 {
		t.Fatalf("image endpoint was called %d times", f.client.imageCalls)
	}
}

func TestGenerate_ContentPolicyRejectionPropagates(t *testing.T) {
	f := newOutfitFixture(t)
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		return nil, fmt.Errorf("images: %w", ErrGenerationRejected)
	}

	spec := OutfitSpec{Occasion: "business", Season: "winter", FabricCodes: []string{"CB23001"}}
	_, err := f.svc.Generate(context.Background(), spec, false)
	if !errors.Is(err, ErrGenerationRejected) {
		t.Fatalf("expected ErrGenerationRejected, got %v", err)
	}
}

func TestGenerateVariants_PartialFailureKeepsSuccesses(t *testing.T) {
	f := newOutfitFixture(t)
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		if f.client.imageCalls == 2 {
			return nil, errors.New("provider hiccup")
		}
		return &GeneratedImage{B64JSON: "aGVsbG8=", Model: "dall-e-3", Size: "1024x1024"}, nil
	}

	spec := OutfitSpec{Occasion: "business", Season: "winter"}
	results := f.svc.GenerateVariants(context.Background(), spec, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 variant slots, got %d", len(results))
	}
	var succeeded, failed int
	for _, r := range results {
		if r.Outfit != nil {
			succeeded++
		} else if r.Error != "" {
			failed++
		}
	}
	if succeeded != 2 || failed != 1 {
		t.Fatalf("expected 2 successes and 1 failure, got %d/%d", succeeded, failed)
	}
	if results[1].Outfit != nil || results[1].Error == "" {
		t.Fatalf("the failed run must be reported in its slot: %+v", results[1])
	}

	persisted, err := f.outfits.List(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("successful variants must stay persisted, got %d rows", len(persisted))
	}
}

func TestGenerateVariants_RotatesStylePreferences(t *testing.T) {
	f := newOutfitFixture(t)
	var prompts []string
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		prompts = append(prompts, prompt)
		return &GeneratedImage{B64JSON: "aGVsbG8=", Model: "dall-e-3", Size: "1024x1024"}, nil
	}

	f.svc.GenerateVariants(context.Background(), OutfitSpec{Occasion: "business", Season: "winter"}, 3)
	if len(prompts) != 3 {
		t.Fatalf("expected 3 image calls, got %d", len(prompts))
	}
	wantStyles := []string{"classic, timeless style", "modern, contemporary style", "bold, distinctive style"}
	for i, want := range wantStyles {
		if !strings.Contains(prompts[i], want) {
			t.Fatalf("variant %d prompt missing %q: %q", i+1, want, prompts[i])
		}
	}
}

func TestGenerateShowcase_BuildsSpecFromFabric(t *testing.T) {
	f := newOutfitFixture(t)
	var captured string
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		captured = prompt
		return &GeneratedImage{B64JSON: "aGVsbG8=", Model: "dall-e-3", Size: "1024x1024"}, nil
	}

	outfit, err := f.svc.GenerateShowcase(context.Background(), "CB23001")
	if err != nil {
		t.Fatalf("GenerateShowcase: %v", err)
	}
	if outfit.Occasion != "business" || outfit.Season != types.SeasonWinter {
		t.Fatalf("showcase must inherit the fabric's category and season: %+v", outfit)
	}
	if !strings.Contains(captured, "Showcasing fabric CB23001") {
		t.Fatalf("showcase note missing from prompt: %q", captured)
	}
	if !strings.Contains(captured, "elegant, refined style") {
		t.Fatalf("showcase styles missing from prompt: %q", captured)
	}

	_, err = f.svc.GenerateShowcase(context.Background(), "NOPE999")
	if !errors.Is(err, ErrUnknownFabric) {
		t.Fatalf("expected ErrUnknownFabric for unknown code, got %v", err)
	}
}

func TestGenerate_ImageStoreFailureDegrades(t *testing.T) {
	f := newOutfitFixture(t)
	f.client.imageFn = func(ctx context.Context, prompt string) (*GeneratedImage, error) {
		// Not valid base64, so local storage fails after a successful
		// provider response.
		return &GeneratedImage{B64JSON: "!!!not-base64!!!", Model: "dall-e-3", Size: "1024x1024"}, nil
	}

	spec := OutfitSpec{Occasion: "business", Season: "winter", FabricCodes: []string{"CB23001"}}
	outfit, err := f.svc.Generate(context.Background(), spec, false)
	if err != nil {
		t.Fatalf("storage failure must not fail the generation: %v", err)
	}
	if outfit.LocalImagePath != "" {
		t.Fatalf("expected empty local path after storage failure, got %q", outfit.LocalImagePath)
	}
}

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func harvestStubHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Welcome back</body></html>")
	})
	mux.HandleFunc("/stocktisue", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err != nil {
			fmt.Fprint(w, loginPageBody)
			return
		}
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, `<html><body>
				<div class="fabric-item"><h3>Wool Twill</h3>CB23001 280 g</div>
				<div class="fabric-item"><h3>Summer Linen</h3>LN24002 190 g</div>
			</body></html>`)
		case "2":
			// Same code again with a corrected weight; the later page wins.
			fmt.Fprint(w, `<html><body>
				<div class="fabric-item"><h3>Wool Twill</h3>CB23001 320 g</div>
			</body></html>`)
		default:
			fmt.Fprint(w, `<html><body><div class="empty">No more results</div></body></html>`)
		}
	})
	// Constructed marketing image candidates all miss, so records come back
	// without downloaded assets.
	mux.HandleFunc("/documente/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

func TestHarvester_WalksPagesAndDedupesByCode(t *testing.T) {
	server := httptest.NewServer(harvestStubHandler(t))
	defer server.Close()

	cfg := gatewayConfig(server.URL)
	cfg.ImageConcurrency = 2
	cfg.ImageDir = t.TempDir()
	cfg.ImageMaxDimension = 2048
	cfg.JPEGQuality = 90

	log := testLogger(t)
	gw, err := NewGateway(cfg, log)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	h := NewHarvester(cfg, gw, log)

	records, summary, err := h.Harvest(context.Background(), 0)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if summary.PagesFetched != 3 {
		t.Fatalf("expected 3 fetched pages (2 listings + 1 empty), got %d", summary.PagesFetched)
	}
	if len(records) != 2 || summary.RecordsParsed != 2 {
		t.Fatalf("expected 2 deduplicated records, got %d (%+v)", len(records), summary)
	}

	byCode := map[string]FabricRecord{}
	for _, r := range records {
		byCode[r.FabricCode] = r
	}
	wool, ok := byCode["CB23001"]
	if !ok {
		t.Fatalf("missing CB23001 in %v", records)
	}
	if wool.Weight != 320 {
		t.Fatalf("later page must win the dedupe, got weight %d", wool.Weight)
	}
	if _, ok := byCode["LN24002"]; !ok {
		t.Fatalf("missing LN24002 in %v", records)
	}
	if summary.ImagesDownloaded != 0 {
		t.Fatalf("no reachable images expected, got %d", summary.ImagesDownloaded)
	}
}

func TestHarvester_MaxRecordsStopsTheWalk(t *testing.T) {
	server := httptest.NewServer(harvestStubHandler(t))
	defer server.Close()

	cfg := gatewayConfig(server.URL)
	cfg.ImageConcurrency = 2
	cfg.ImageDir = t.TempDir()

	log := testLogger(t)
	gw, err := NewGateway(cfg, log)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	h := NewHarvester(cfg, gw, log)

	records, _, err := h.Harvest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected walk to stop at 2 records, got %d", len(records))
	}
}

func TestHarvester_AuthFailureAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := gatewayConfig(server.URL)
	cfg.ImageConcurrency = 1
	cfg.ImageDir = t.TempDir()

	log := testLogger(t)
	gw, err := NewGateway(cfg, log)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	h := NewHarvester(cfg, gw, log)

	_, summary, err := h.Harvest(context.Background(), 0)
	if err == nil {
		t.Fatalf("expected auth failure to abort the walk")
	}
	if summary.PagesFetched != 0 {
		t.Fatalf("no pages should be fetched after auth failure, got %d", summary.PagesFetched)
	}
}

package scraper

import (
	"strings"
	"testing"
)

func testParser() *Parser {
	return NewParser(Config{
		BaseURL:      "https://b2b2.example.com",
		ImageBaseURL: "https://b2b2.example.com/documente/marketing",
	})
}

func TestParsePage_ExtractsRecordsFromProductContainers(t *testing.T) {
	page := `
	<html><body>
	  <div class="header">Formens B2B Catalog</div>
	  <div class="fabric-item">
	    <h3>Premium Wool Twill</h3>
	    <span class="composition">100% Wool</span>
	    <span class="color">Navy</span>
	    <span class="pattern">Herringbone</span>
	    <span class="stock">In Stock</span>
	    CB23001 280 g/m
	    <img src="/images/cb23001.jpg">
	  </div>
	  <div class="fabric-item">
	    <h3>Summer Linen</h3>
	    <span class="composition">55% Linen 45% Cotton</span>
	    LN24002 190 g
	  </div>
	</body></html>`

	records, parseErrs := testParser().ParsePage(page, 1)
	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.FabricCode != "CB23001" {
		t.Fatalf("expected code CB23001, got %q", first.FabricCode)
	}
	if first.Name != "Premium Wool Twill" {
		t.Fatalf("expected name from heading, got %q", first.Name)
	}
	if first.Composition != "100% Wool" || first.Color != "Navy" || first.Pattern != "Herringbone" {
		t.Fatalf("unexpected attribute extraction: %+v", first)
	}
	if first.Weight != 280 {
		t.Fatalf("expected weight 280, got %d", first.Weight)
	}
	if first.StockStatus != "In Stock" {
		t.Fatalf("expected stock status, got %q", first.StockStatus)
	}
	if first.Supplier != "Formens" {
		t.Fatalf("expected default supplier, got %q", first.Supplier)
	}
	if len(first.ImageURLs) != 1 || first.ImageURLs[0] != "https://b2b2.example.com/images/cb23001.jpg" {
		t.Fatalf("expected resolved inline image URL, got %v", first.ImageURLs)
	}

	second := records[1]
	if second.FabricCode != "LN24002" || second.Weight != 190 {
		t.Fatalf("unexpected second record: %+v", second)
	}
}

func TestParsePage_FallsBackToTableRows(t *testing.T) {
	page := `
	<html><body><table>
	  <tr><td>CB23001</td><td>320 g</td></tr>
	  <tr><td>LN24002</td><td>190 g</td></tr>
	  <tr><td>Totals</td><td>2 fabrics</td></tr>
	</table></body></html>`

	records, parseErrs := testParser().ParsePage(page, 1)
	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records from table rows, got %d", len(records))
	}
	if records[0].FabricCode != "CB23001" || records[0].Weight != 320 {
		t.Fatalf("unexpected first row: %+v", records[0])
	}
}

func TestParsePage_SkipsContainersWithoutFabricCode(t *testing.T) {
	page := `
	<html><body>
	  <div class="product">No code here, just marketing text</div>
	  <div class="product">GENERAL CATALOG</div>
	  <div class="product">Fabric CB23001 available</div>
	</body></html>`

	records, parseErrs := testParser().ParsePage(page, 3)
	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	if len(records) != 1 || records[0].FabricCode != "CB23001" {
		t.Fatalf("expected only the coded container, got %+v", records)
	}
}

func TestParsePage_ConstructsImageURLsWhenListingHasNone(t *testing.T) {
	page := `<html><body><div class="fabric-item">CB23001 280 g</div></body></html>`

	records, _ := testParser().ParsePage(page, 1)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	urls := records[0].ImageURLs
	if len(urls) != 3 {
		t.Fatalf("expected one candidate per marketing directory, got %v", urls)
	}
	want := "https://b2b2.example.com/documente/marketing/Ceremony%20Suits/05._CB23001.jpg"
	if urls[0] != want {
		t.Fatalf("expected %q, got %q", want, urls[0])
	}
	for _, u := range urls {
		if !strings.Contains(u, "05._CB23001.jpg") {
			t.Fatalf("constructed URL missing filename convention: %q", u)
		}
	}
}

func TestFindFabricCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain code", "Fabric CB23001 280 g", "CB23001"},
		{"digits only", "Ref 23450012 available", "23450012"},
		{"uppercase word without digits rejected", "GENERAL CATALOG LISTING", ""},
		{"too short", "AB123 is not a code", ""},
		{"too long", "ABCD1234X exceeds the shape", ""},
		{"first coded token wins", "CATALOG CB23001 LN24002", "CB23001"},
		{"lowercase rejected", "cb23001 280 g", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := findFabricCode(tc.text); got != tc.want {
				t.Fatalf("findFabricCode(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestParsePage_NameFallsBackToCode(t *testing.T) {
	page := `<html><body><div class="fabric-item">CB23001</div></body></html>`

	records, _ := testParser().ParsePage(page, 1)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Name != "CB23001" {
		t.Fatalf("expected code as name fallback, got %q", records[0].Name)
	}
}

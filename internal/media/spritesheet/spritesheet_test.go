package spritesheet

import "testing"

func TestCalculateParamsIntervalFloor(t *testing.T) {
	p := CalculateParams(1000, 1920, 1080)
	if p.Interval != minIntervalSeconds {
		t.Fatalf("interval = %d, want floor of %d for a short video", p.Interval, minIntervalSeconds)
	}

	p = CalculateParams(500_000, 1920, 1080)
	if p.Interval != 1000 {
		t.Fatalf("interval = %d, want 1000 for a 500000s video", p.Interval)
	}
}

func TestCalculateParamsSheetDimensionCeilSqrt(t *testing.T) {
	p := CalculateParams(5000, 1920, 1080)
	// interval = max(5, 5000/500) = 10, count = ceil(5000/10) = 500
	if p.ThumbnailCount != 500 {
		t.Fatalf("thumbnail count = %d, want 500", p.ThumbnailCount)
	}
	// ceil(sqrt(500)) = 23
	if p.SheetRows != 23 || p.SheetCols != 23 {
		t.Fatalf("sheet dims = %dx%d, want 23x23", p.SheetCols, p.SheetRows)
	}
}

func TestCalculateParamsThumbnailWidthPreservesAspect(t *testing.T) {
	p := CalculateParams(1000, 1920, 1080)
	want := 1920 * targetThumbnailHeight / 1080
	if p.ThumbnailWidth != want {
		t.Fatalf("thumbnail width = %d, want %d", p.ThumbnailWidth, want)
	}
	if p.ThumbnailHeight != targetThumbnailHeight {
		t.Fatalf("thumbnail height = %d, want %d", p.ThumbnailHeight, targetThumbnailHeight)
	}
}

func TestTileIndexMappingStaysWithinSheetBounds(t *testing.T) {
	p := CalculateParams(5000, 1920, 1080)
	for offset := 0; offset < p.ThumbnailCount; offset++ {
		col := offset % p.SheetCols
		row := offset / p.SheetRows
		if col >= p.SheetCols || row >= p.SheetRows {
			t.Fatalf("offset %d maps to (col=%d, row=%d), outside %dx%d sheet", offset, col, row, p.SheetCols, p.SheetRows)
		}
	}
}

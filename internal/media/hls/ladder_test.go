package hls

import "testing"

func TestLadderIDsAreStable(t *testing.T) {
	want := []string{"1080p_12M", "720p_8M", "480p_2M", "360p_1M"}
	if len(Ladder) != len(want) {
		t.Fatalf("ladder has %d rungs, want %d", len(Ladder), len(want))
	}
	for i, id := range want {
		if Ladder[i].ID != id {
			t.Fatalf("rung %d id = %q, want %q", i, Ladder[i].ID, id)
		}
	}
}

func TestRungOfferedOnlyWhenNotUpscaling(t *testing.T) {
	rung, ok := RungByID("720p_8M")
	if !ok {
		t.Fatal("720p_8M rung not found")
	}
	if !rung.Offered(1080) {
		t.Fatal("720p rung should be offered for a 1080p source")
	}
	if rung.Offered(480) {
		t.Fatal("720p rung should not be offered for a 480p source (would upscale)")
	}
	if !rung.Offered(720) {
		t.Fatal("720p rung should be offered for an exact-height source")
	}
}

func TestMaxBandwidthIncludesOverhead(t *testing.T) {
	rung, _ := RungByID("360p_1M")
	want := rung.VideoBitRate + rung.AudioBitRate + 16_000
	if rung.MaxBandwidth() != want {
		t.Fatalf("max bandwidth = %d, want %d", rung.MaxBandwidth(), want)
	}
}

package variant

import "testing"

func TestSelect(t *testing.T) {
	variants := []Variant{
		{Bandwidth: 800000, PlaylistURL: "low.m3u8"},
		{Bandwidth: 2400000, PlaylistURL: "high.m3u8"},
		{Bandwidth: 2400000, PlaylistURL: "high-dup.m3u8"},
		{Bandwidth: 1200000, PlaylistURL: "mid.m3u8"},
	}

	tests := []struct {
		name     string
		variants []Variant
		index    int
		want     string
		wantErr  bool
	}{
		{"highest bandwidth", variants, -1, "high.m3u8", false},
		{"explicit index", variants, 3, "mid.m3u8", false},
		{"first index", variants, 0, "low.m3u8", false},
		{"index out of range", variants, 4, "", true},
		{"no variants", nil, -1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.variants, tt.index)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Select() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.PlaylistURL != tt.want {
				t.Errorf("Select() = %q, want %q", got.PlaylistURL, tt.want)
			}
		})
	}
}

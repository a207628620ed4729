// Package variant defines data structures for HLS variant streams in master playlists.
package variant

import "fmt"

// Variant represents a single variant stream in an HLS master playlist.
// Each variant typically represents a different quality level (bitrate/resolution).
type Variant struct {
	// Bandwidth is the peak segment bitrate in bits per second
	Bandwidth int

	// Resolution is the video resolution (e.g., "1920x1080", "1280x720")
	// Empty string if not specified in master playlist
	Resolution string

	// Codecs is the codec string (e.g., "avc1.4d401f,mp4a.40.2")
	// Empty string if not specified in master playlist
	Codecs string

	// PlaylistURL is the absolute URL of the variant's media playlist
	PlaylistURL string
}

// Select picks the variant to record. A negative index selects the variant
// with the highest bandwidth; the first one wins ties.
func Select(variants []Variant, index int) (Variant, error) {
	if len(variants) == 0 {
		return Variant{}, fmt.Errorf("master playlist contains no variants")
	}

	if index >= 0 {
		if index >= len(variants) {
			return Variant{}, fmt.Errorf("variant index %d out of range (0-%d)", index, len(variants)-1)
		}
		return variants[index], nil
	}

	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, nil
}

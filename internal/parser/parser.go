// Package parser fetches HLS playlists and decodes them into playlist snapshots.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/agleyzer/hlsdump/internal/playlist"
	"github.com/agleyzer/hlsdump/internal/variant"
	"github.com/grafov/m3u8"
)

// DefaultTimeout bounds a single playlist request.
const DefaultTimeout = 30 * time.Second

// Parser implements playlist.Fetcher on top of grafov/m3u8.
//
// When the requested URL turns out to be a master playlist, a variant is
// selected once and its media playlist is polled on every later Fetch.
type Parser struct {
	client       *http.Client
	timeout      time.Duration
	variantIndex int
	logger       *slog.Logger

	mu       sync.Mutex
	resolved map[string]string // requested URL -> media playlist URL
}

// New creates a parser. variantIndex selects the variant of a master
// playlist; a negative value picks the highest bandwidth.
func New(client *http.Client, timeout time.Duration, variantIndex int, logger *slog.Logger) *Parser {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Parser{
		client:       client,
		timeout:      timeout,
		variantIndex: variantIndex,
		logger:       logger,
		resolved:     make(map[string]string),
	}
}

// Fetch retrieves the playlist at playlistURL and returns its snapshot.
// Every error wraps playlist.ErrPlaylistFetch.
func (p *Parser) Fetch(ctx context.Context, playlistURL string) (*playlist.Snapshot, error) {
	snap, err := p.fetch(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", playlist.ErrPlaylistFetch, err)
	}
	return snap, nil
}

func (p *Parser) fetch(ctx context.Context, playlistURL string) (*playlist.Snapshot, error) {
	p.mu.Lock()
	mediaURL, ok := p.resolved[playlistURL]
	p.mu.Unlock()
	if !ok {
		mediaURL = playlistURL
	}

	pl, listType, err := p.decode(ctx, mediaURL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MASTER {
		master, ok := pl.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type")
		}

		v, err := p.selectVariant(master, mediaURL)
		if err != nil {
			return nil, err
		}
		p.logger.Info("selected variant",
			"bandwidth", v.Bandwidth,
			"resolution", v.Resolution,
			"url", v.PlaylistURL,
		)

		pl, listType, err = p.decode(ctx, v.PlaylistURL)
		if err != nil {
			return nil, fmt.Errorf("variant playlist: %w", err)
		}
		if listType != m3u8.MEDIA {
			return nil, fmt.Errorf("expected media playlist, got master playlist")
		}

		mediaURL = v.PlaylistURL
		p.mu.Lock()
		p.resolved[playlistURL] = mediaURL
		p.mu.Unlock()
	}

	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("unexpected playlist type")
	}

	return snapshotFromMedia(media, mediaURL)
}

// decode fetches and decodes the playlist at playlistURL.
func (p *Parser) decode(ctx context.Context, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("failed to fetch playlist: HTTP %d", resp.StatusCode)
	}

	pl, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse playlist: %w", err)
	}
	return pl, listType, nil
}

func (p *Parser) selectVariant(master *m3u8.MasterPlaylist, masterURL string) (variant.Variant, error) {
	var variants []variant.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}

		variantURL, err := resolveURL(masterURL, v.URI)
		if err != nil {
			return variant.Variant{}, fmt.Errorf("failed to resolve variant URL: %w", err)
		}

		variants = append(variants, variant.Variant{
			Bandwidth:   int(v.Bandwidth),
			Resolution:  v.Resolution,
			Codecs:      v.Codecs,
			PlaylistURL: variantURL,
		})
	}

	return variant.Select(variants, p.variantIndex)
}

// snapshotFromMedia converts a decoded media playlist into a snapshot with
// absolute segment URLs.
func snapshotFromMedia(media *m3u8.MediaPlaylist, playlistURL string) (*playlist.Snapshot, error) {
	var (
		urls        []string
		maxDuration float64
	)
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}

		segmentURL, err := resolveURL(playlistURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve segment URL: %w", err)
		}
		urls = append(urls, segmentURL)

		if seg.Duration > maxDuration {
			maxDuration = seg.Duration
		}
	}

	targetDuration := media.TargetDuration
	if targetDuration <= 0 {
		// If target duration is not set, use the max segment duration
		targetDuration = math.Floor(maxDuration) + 1
	}

	return &playlist.Snapshot{
		SequenceStart:  media.SeqNo,
		SegmentURLs:    urls,
		TargetDuration: time.Duration(targetDuration * float64(time.Second)),
		Ended:          media.Closed,
	}, nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	// Resolve the relative URL against the base
	resolved := base.ResolveReference(rel)
	return resolved.String(), nil
}

package playlist

import "errors"

var (
	// ErrPlaylistFetch wraps any failure to retrieve or parse the playlist.
	ErrPlaylistFetch = errors.New("playlist fetch failed")

	// ErrPlaylistExhausted is returned by Poller.Run once consecutive
	// fetch failures reach the attempt limit. It is fatal.
	ErrPlaylistExhausted = errors.New("playlist fetch attempts exhausted")
)

package transform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"playetl/internal/schema"
)

// Resolver resolves song_id/artist_id for play events by exact match on the
// natural key (artist name, song title, duration).
//
// The index is in-memory, keyed by an xxh3 hash of the normalized triple;
// candidates store the full triple so a hash collision can never produce a
// false match. Both sides of a lookup pass through the same normalization
// (NFC + whitespace trim), so results do not depend on how the source
// encoded the strings.
type Resolver struct {
	index map[uint64][]candidate
}

type candidate struct {
	artist   string
	title    string
	duration float64
	songID   string
	artistID string
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{index: make(map[uint64][]candidate)}
}

// Add registers one loaded song under its natural key. artistName is the
// artist's display name (the log feed matches on name, not artist_id).
func (r *Resolver) Add(artistName, title string, duration float64, songID, artistID string) {
	c := candidate{
		artist:   normText(artistName),
		title:    normText(title),
		duration: duration,
		songID:   songID,
		artistID: artistID,
	}
	h := keyHash(c.artist, c.title, c.duration)
	r.index[h] = append(r.index[h], c)
}

// Len returns the number of indexed songs.
func (r *Resolver) Len() int {
	n := 0
	for _, cs := range r.index {
		n += len(cs)
	}
	return n
}

// Resolve looks up the event's (artist, song, length) triple and returns the
// matching song_id and artist_id, or (nil, nil) when no song agrees on all
// three. The pair is always both set or both nil.
//
// When several songs share a natural key, the winner is deterministic: the
// candidate with the lowest song_id in byte order, then the lowest
// artist_id. The tie-break is a documented contract, not insertion order.
func (r *Resolver) Resolve(ev schema.LogEvent) (songID, artistID *string) {
	if ev.Length == nil {
		return nil, nil
	}
	artist := normText(ev.Artist)
	title := normText(ev.Song)
	duration := *ev.Length

	var matches []candidate
	for _, c := range r.index[keyHash(artist, title, duration)] {
		if c.artist == artist && c.title == title && c.duration == duration {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].songID != matches[j].songID {
			return matches[i].songID < matches[j].songID
		}
		return matches[i].artistID < matches[j].artistID
	})
	return &matches[0].songID, &matches[0].artistID
}

func normText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func keyHash(artist, title string, duration float64) uint64 {
	var b strings.Builder
	b.WriteString(artist)
	b.WriteByte('\x1f')
	b.WriteString(title)
	b.WriteByte('\x1f')
	b.WriteString(strconv.FormatFloat(duration, 'g', -1, 64))
	return xxh3.HashString(b.String())
}

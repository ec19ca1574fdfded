package transform

import (
	"testing"

	"playetl/internal/schema"
)

func playEvent(artist, song string, length float64) schema.LogEvent {
	return schema.LogEvent{
		Artist: artist,
		Song:   song,
		Length: &length,
		Page:   schema.PageNextSong,
		UserID: "10",
	}
}

func TestResolver_ExactMatch(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	r.Add("Elena", "Setanta matins", 269.58187, "SOZCTXZ12AB0182364", "AR5KOSW1187FB35FF4")

	songID, artistID := r.Resolve(playEvent("Elena", "Setanta matins", 269.58187))
	if songID == nil || artistID == nil {
		t.Fatal("Resolve() = nil; want a match")
	}
	if *songID != "SOZCTXZ12AB0182364" || *artistID != "AR5KOSW1187FB35FF4" {
		t.Errorf("Resolve() = %s/%s", *songID, *artistID)
	}
}

func TestResolver_NoPartialMatch(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	r.Add("Elena", "Setanta matins", 269.58187, "S1", "A1")

	// All three key parts must agree.
	cases := []schema.LogEvent{
		playEvent("Elena", "Setanta matins", 269.58188),
		playEvent("Elena", "Other Song", 269.58187),
		playEvent("Someone Else", "Setanta matins", 269.58187),
	}
	for i, ev := range cases {
		if songID, artistID := r.Resolve(ev); songID != nil || artistID != nil {
			t.Errorf("case %d: Resolve() matched %v/%v; want nil/nil", i, songID, artistID)
		}
	}
}

func TestResolver_NilLength(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	r.Add("Elena", "Setanta matins", 269.58187, "S1", "A1")

	ev := schema.LogEvent{Artist: "Elena", Song: "Setanta matins", Page: schema.PageNextSong}
	if songID, artistID := r.Resolve(ev); songID != nil || artistID != nil {
		t.Error("Resolve() matched an event with nil length")
	}
}

func TestResolver_TieBreakLowestIDs(t *testing.T) {
	t.Parallel()

	// Two songs share the natural key; the lowest song_id wins regardless of
	// insertion order.
	r := NewResolver()
	r.Add("Dup Artist", "Dup Title", 100.5, "S9", "A9")
	r.Add("Dup Artist", "Dup Title", 100.5, "S1", "A5")
	r.Add("Dup Artist", "Dup Title", 100.5, "S1", "A2")

	songID, artistID := r.Resolve(playEvent("Dup Artist", "Dup Title", 100.5))
	if songID == nil || artistID == nil {
		t.Fatal("Resolve() = nil; want a match")
	}
	if *songID != "S1" || *artistID != "A2" {
		t.Errorf("Resolve() = %s/%s; want S1/A2", *songID, *artistID)
	}
}

func TestResolver_NormalizesKeys(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	// Decomposed e + combining acute, with trailing whitespace.
	r.Add("Beyonce\u0301 ", "Halo", 261.0, "S1", "A1")

	// Precomposed form, trimmed.
	songID, _ := r.Resolve(playEvent("Beyoncé", "Halo", 261.0))
	if songID == nil {
		t.Fatal("Resolve() did not match across Unicode normalization forms")
	}
	if *songID != "S1" {
		t.Errorf("Resolve() = %s", *songID)
	}
}

func TestResolver_Len(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	if r.Len() != 0 {
		t.Errorf("empty Len() = %d", r.Len())
	}
	r.Add("A", "T", 1, "S1", "A1")
	r.Add("B", "U", 2, "S2", "A2")
	if r.Len() != 2 {
		t.Errorf("Len() = %d; want 2", r.Len())
	}
}

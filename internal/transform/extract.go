// Package transform maps validated input records onto star-schema rows:
// dimension extraction, intra-batch de-duplication, and fact-key resolution.
package transform

import "playetl/internal/schema"

// SongDimensions derives the dimension rows for one song-metadata record:
// exactly one Song and one Artist. Fields are copied verbatim; numeric
// coercion already happened in the schema constructor.
func SongDimensions(m schema.SongMeta) (schema.Song, schema.Artist) {
	song := schema.Song{
		SongID:   m.SongID,
		Title:    m.Title,
		ArtistID: m.ArtistID,
		Year:     m.Year,
		Duration: m.Duration,
	}
	artist := schema.Artist{
		ArtistID:  m.ArtistID,
		Name:      m.ArtistName,
		Location:  m.ArtistLocation,
		Latitude:  m.ArtistLat,
		Longitude: m.ArtistLong,
	}
	return song, artist
}

// UserOf derives the users-dimension row for a NextSong event.
func UserOf(ev schema.LogEvent) schema.User {
	return schema.User{
		UserID:    ev.UserID,
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
		Gender:    ev.Gender,
		Level:     ev.Level,
	}
}

// TimeBucketOf derives the time-dimension row for a NextSong event.
func TimeBucketOf(ev schema.LogEvent) schema.TimeBucket {
	return schema.NewTimeBucket(ev.TS)
}

// PlayEventOf assembles the fact row for a NextSong event with the resolved
// dimension keys (both set or both nil).
func PlayEventOf(ev schema.LogEvent, songID, artistID *string) schema.PlayEvent {
	return schema.PlayEvent{
		PlayID:    ev.PlayID(),
		StartTime: ev.TS,
		UserID:    ev.UserID,
		Level:     ev.Level,
		SongID:    songID,
		ArtistID:  artistID,
		SessionID: ev.SessionID,
		Location:  ev.Location,
		UserAgent: ev.UserAgent,
	}
}

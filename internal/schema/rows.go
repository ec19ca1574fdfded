package schema

import "time"

// Song is a row of the songs dimension. Immutable once inserted; duplicate
// song_ids are no-ops on reload.
type Song struct {
	SongID   string  `db:"song_id"`
	Title    string  `db:"title"`
	ArtistID string  `db:"artist_id"`
	Year     float64 `db:"year"`
	Duration float64 `db:"duration"`
}

// SongColumns is the column order used for inserts and staging.
var SongColumns = []string{"song_id", "title", "artist_id", "year", "duration"}

func (s Song) Values() []any {
	return []any{s.SongID, s.Title, s.ArtistID, s.Year, s.Duration}
}

// Artist is a row of the artists dimension. At most one row per artist_id
// survives a load; latest write wins under the bulk dedup pass.
type Artist struct {
	ArtistID  string   `db:"artist_id"`
	Name      string   `db:"name"`
	Location  string   `db:"location"`
	Latitude  *float64 `db:"latitude"`
	Longitude *float64 `db:"longitude"`
}

var ArtistColumns = []string{"artist_id", "name", "location", "latitude", "longitude"}

func (a Artist) Values() []any {
	return []any{a.ArtistID, a.Name, a.Location, a.Latitude, a.Longitude}
}

// User is a row of the users dimension. subscription_level is mutable across
// a user's lifetime; reloads keep the most recent row per user_id.
type User struct {
	UserID    string `db:"user_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Gender    string `db:"gender"`
	Level     string `db:"level"`
}

var UserColumns = []string{"user_id", "first_name", "last_name", "gender", "level"}

func (u User) Values() []any {
	return []any{u.UserID, u.FirstName, u.LastName, u.Gender, u.Level}
}

// TimeBucket is a row of the time dimension, keyed by the epoch-millisecond
// timestamp. Derived deterministically; never updated once computed.
type TimeBucket struct {
	StartTime int64 `db:"start_time"` // epoch milliseconds
	Hour      int   `db:"hour"`
	Day       int   `db:"day"`
	Week      int   `db:"week"`
	Month     int   `db:"month"`
	Year      int   `db:"year"`
	Weekday   int   `db:"weekday"`
}

var TimeBucketColumns = []string{"start_time", "hour", "day", "week", "month", "year", "weekday"}

func (t TimeBucket) Values() []any {
	return []any{t.StartTime, t.Hour, t.Day, t.Week, t.Month, t.Year, t.Weekday}
}

// NewTimeBucket derives the calendar buckets for an epoch-millisecond
// timestamp using UTC rules.
//
// Numbering is a behavior contract: Week is the ISO-8601 week of year and
// Weekday runs Monday=0 .. Sunday=6. Source platforms disagree on both, so
// tests pin exact values.
func NewTimeBucket(tsMillis int64) TimeBucket {
	t := time.UnixMilli(tsMillis).UTC()
	_, week := t.ISOWeek()
	return TimeBucket{
		StartTime: tsMillis,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// PlayEvent is a row of the append-only fact table. SongID and ArtistID are
// either both set or both nil; a match requires agreement on song title,
// artist name, and duration.
type PlayEvent struct {
	PlayID    int64   `db:"play_id"` // deterministic hash of (session_id, ts, user_id)
	StartTime int64   `db:"start_time"`
	UserID    string  `db:"user_id"`
	Level     string  `db:"level"`
	SongID    *string `db:"song_id"`
	ArtistID  *string `db:"artist_id"`
	SessionID int64   `db:"session_id"`
	Location  string  `db:"location"`
	UserAgent string  `db:"user_agent"`
}

var PlayEventColumns = []string{
	"play_id", "start_time", "user_id", "level",
	"song_id", "artist_id", "session_id", "location", "user_agent",
}

func (p PlayEvent) Values() []any {
	return []any{
		p.PlayID, p.StartTime, p.UserID, p.Level,
		p.SongID, p.ArtistID, p.SessionID, p.Location, p.UserAgent,
	}
}

// StageEventColumns is the column order for the raw event staging table used
// by the bulk variant. It mirrors the log feed field for field, plus the
// precomputed play_id so the fact insert stays deterministic across
// variants.
var StageEventColumns = []string{
	"artist", "auth", "first_name", "gender", "item_in_session", "last_name",
	"length", "level", "location", "method", "page", "registration",
	"session_id", "song", "status", "ts", "user_agent", "user_id", "play_id",
}

// StageValues renders a LogEvent in StageEventColumns order.
func (ev LogEvent) StageValues() []any {
	return []any{
		ev.Artist, ev.Auth, ev.FirstName, ev.Gender, ev.ItemInSession, ev.LastName,
		ev.Length, ev.Level, ev.Location, ev.Method, ev.Page, ev.Registration,
		ev.SessionID, ev.Song, ev.Status, ev.TS, ev.UserAgent, ev.UserID, ev.PlayID(),
	}
}

// StageSongColumns is the column order for the raw song staging table.
var StageSongColumns = []string{
	"song_id", "title", "artist_id", "year", "duration",
	"artist_name", "artist_location", "artist_latitude", "artist_longitude",
}

// StageValues renders a SongMeta in StageSongColumns order.
func (m SongMeta) StageValues() []any {
	return []any{
		m.SongID, m.Title, m.ArtistID, m.Year, m.Duration,
		m.ArtistName, m.ArtistLocation, m.ArtistLat, m.ArtistLong,
	}
}

package schema

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"playetl/pkg/records"
)

// SongMeta is one decoded song-metadata record (one JSON object per file).
type SongMeta struct {
	SongID         string
	Title          string
	ArtistID       string
	Year           float64
	Duration       float64
	ArtistName     string
	ArtistLocation string
	ArtistLat      *float64
	ArtistLong     *float64
}

// NewSongMeta validates and coerces a raw record into a SongMeta.
//
// song_id, title, artist_id, and artist_name must be present and non-empty;
// year and duration must be present and numeric (strings holding numbers are
// accepted). Latitude/longitude are optional and stay nil when absent or
// null. A non-numeric value in any numeric field fails with a CoercionError.
//
// title and artist_name are natural-key match columns and normalize to
// NFC with surrounding whitespace trimmed, so the warehouse-side fact join
// and the in-memory resolver see identical keys regardless of how the
// source encoded the strings.
func NewSongMeta(rec records.Record) (SongMeta, error) {
	var m SongMeta
	var err error

	if m.SongID, err = reqString(rec, "song_id"); err != nil {
		return SongMeta{}, err
	}
	if m.Title, err = reqString(rec, "title"); err != nil {
		return SongMeta{}, err
	}
	if m.ArtistID, err = reqString(rec, "artist_id"); err != nil {
		return SongMeta{}, err
	}
	if m.ArtistName, err = reqString(rec, "artist_name"); err != nil {
		return SongMeta{}, err
	}
	if m.Year, err = reqFloat(rec, "year"); err != nil {
		return SongMeta{}, err
	}
	if m.Duration, err = reqFloat(rec, "duration"); err != nil {
		return SongMeta{}, err
	}
	m.Title = normText(m.Title)
	m.ArtistName = normText(m.ArtistName)
	m.ArtistLocation = rec.String("artist_location")
	if m.ArtistLat, err = optFloat(rec, "artist_latitude"); err != nil {
		return SongMeta{}, err
	}
	if m.ArtistLong, err = optFloat(rec, "artist_longitude"); err != nil {
		return SongMeta{}, err
	}
	return m, nil
}

// PageNextSong is the page value that marks a play event in the log feed.
const PageNextSong = "NextSong"

// LogEvent is one decoded event-log record (one JSON object per line).
type LogEvent struct {
	Artist        string
	Auth          string
	FirstName     string
	Gender        string
	ItemInSession int64
	LastName      string
	Length        *float64
	Level         string
	Location      string
	Method        string
	Page          string
	Registration  *float64
	SessionID     int64
	Song          string
	Status        int64
	TS            int64
	UserAgent     string
	UserID        string
}

// NewLogEvent validates and coerces a raw record into a LogEvent.
//
// ts and page are required for every event. The remaining fields are coerced
// when present; a NextSong event additionally needs userId, sessionId, level,
// song, artist, and length before it can produce dimension or fact rows, and
// IsPlay reports that. artist and song normalize like their SongMeta
// counterparts; they are the other side of the natural-key match.
func NewLogEvent(rec records.Record) (LogEvent, error) {
	var ev LogEvent
	var err error

	if ev.TS, err = reqInt(rec, "ts"); err != nil {
		return LogEvent{}, err
	}
	if ev.Page, err = reqString(rec, "page"); err != nil {
		return LogEvent{}, err
	}
	ev.Artist = normText(rec.String("artist"))
	ev.Auth = rec.String("auth")
	ev.FirstName = rec.String("firstName")
	ev.Gender = rec.String("gender")
	ev.LastName = rec.String("lastName")
	ev.Level = rec.String("level")
	ev.Location = rec.String("location")
	ev.Method = rec.String("method")
	ev.Song = normText(rec.String("song"))
	ev.UserAgent = rec.String("userAgent")
	ev.UserID = stringish(rec["userId"])

	if ev.Length, err = optFloat(rec, "length"); err != nil {
		return LogEvent{}, err
	}
	if ev.Registration, err = optFloat(rec, "registration"); err != nil {
		return LogEvent{}, err
	}
	if ev.ItemInSession, err = optInt(rec, "itemInSession"); err != nil {
		return LogEvent{}, err
	}
	if ev.SessionID, err = optInt(rec, "sessionId"); err != nil {
		return LogEvent{}, err
	}
	if ev.Status, err = optInt(rec, "status"); err != nil {
		return LogEvent{}, err
	}
	return ev, nil
}

// IsPlay reports whether the event is a NextSong record with every field the
// extractor and resolver need.
func (ev LogEvent) IsPlay() bool {
	return ev.Page == PageNextSong &&
		ev.UserID != "" &&
		ev.Level != "" &&
		ev.Song != "" &&
		ev.Artist != "" &&
		ev.Length != nil
}

// PlayFields returns the first required field a NextSong event is missing,
// or "" when IsPlay would succeed. Used to attribute skip reasons.
func (ev LogEvent) PlayFields() string {
	switch {
	case ev.UserID == "":
		return "userId"
	case ev.Level == "":
		return "level"
	case ev.Song == "":
		return "song"
	case ev.Artist == "":
		return "artist"
	case ev.Length == nil:
		return "length"
	}
	return ""
}

// coerceFloat converts any JSON-borne numeric representation to float64.
// The parser decodes with UseNumber, so json.Number is the common case;
// plain float64/int and numeric strings are accepted too.
func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func coerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// normText canonicalizes a natural-key match column: NFC form, surrounding
// whitespace trimmed.
func normText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// stringish renders scalar values as strings; log feeds ship userId both as
// a string and as a bare number depending on the client version.
func stringish(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func reqString(rec records.Record, field string) (string, error) {
	if !rec.Has(field) {
		return "", &MissingFieldError{Field: field}
	}
	s := stringish(rec[field])
	if s == "" {
		return "", &MissingFieldError{Field: field}
	}
	return s, nil
}

func reqFloat(rec records.Record, field string) (float64, error) {
	if !rec.Has(field) {
		return 0, &MissingFieldError{Field: field}
	}
	f, ok := coerceFloat(rec[field])
	if !ok {
		return 0, &CoercionError{Field: field, Value: rec[field]}
	}
	return f, nil
}

func reqInt(rec records.Record, field string) (int64, error) {
	if !rec.Has(field) {
		return 0, &MissingFieldError{Field: field}
	}
	i, ok := coerceInt(rec[field])
	if !ok {
		return 0, &CoercionError{Field: field, Value: rec[field]}
	}
	return i, nil
}

func optFloat(rec records.Record, field string) (*float64, error) {
	if !rec.Has(field) {
		return nil, nil
	}
	f, ok := coerceFloat(rec[field])
	if !ok {
		return nil, &CoercionError{Field: field, Value: rec[field]}
	}
	return &f, nil
}

func optInt(rec records.Record, field string) (int64, error) {
	if !rec.Has(field) {
		return 0, nil
	}
	i, ok := coerceInt(rec[field])
	if !ok {
		return 0, &CoercionError{Field: field, Value: rec[field]}
	}
	return i, nil
}

package postgres

// Schema DDL for the warehouse. Facts reference dimensions logically, not
// via enforced FKs, so interrupted runs can re-land units in any order.
var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS songs (
		song_id   TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		year      DOUBLE PRECISION,
		duration  DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		artist_id TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		location  TEXT,
		latitude  DOUBLE PRECISION,
		longitude DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		first_name TEXT,
		last_name  TEXT,
		gender     TEXT,
		level      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS time_buckets (
		start_time BIGINT PRIMARY KEY,
		hour       INT NOT NULL,
		day        INT NOT NULL,
		week       INT NOT NULL,
		month      INT NOT NULL,
		year       INT NOT NULL,
		weekday    INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS play_events (
		play_id    BIGINT PRIMARY KEY,
		start_time BIGINT NOT NULL,
		user_id    TEXT NOT NULL,
		level      TEXT,
		song_id    TEXT,
		artist_id  TEXT,
		session_id BIGINT,
		location   TEXT,
		user_agent TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS staging_songs (
		stage_id         BIGSERIAL PRIMARY KEY,
		song_id          TEXT,
		title            TEXT,
		artist_id        TEXT,
		year             DOUBLE PRECISION,
		duration         DOUBLE PRECISION,
		artist_name      TEXT,
		artist_location  TEXT,
		artist_latitude  DOUBLE PRECISION,
		artist_longitude DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS staging_events (
		event_id        BIGSERIAL PRIMARY KEY,
		artist          TEXT,
		auth            TEXT,
		first_name      TEXT,
		gender          TEXT,
		item_in_session BIGINT,
		last_name       TEXT,
		length          DOUBLE PRECISION,
		level           TEXT,
		location        TEXT,
		method          TEXT,
		page            TEXT,
		registration    DOUBLE PRECISION,
		session_id      BIGINT,
		song            TEXT,
		status          BIGINT,
		ts              BIGINT,
		user_agent      TEXT,
		user_id         TEXT,
		play_id         BIGINT
	)`,
}

const (
	insertSong = `INSERT INTO songs (song_id, title, artist_id, year, duration)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (song_id) DO NOTHING`

	insertArtist = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artist_id) DO NOTHING`

	upsertUser = `INSERT INTO users (user_id, first_name, last_name, gender, level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			gender     = EXCLUDED.gender,
			level      = EXCLUDED.level`

	insertTimeBucket = `INSERT INTO time_buckets (start_time, hour, day, week, month, year, weekday)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (start_time) DO NOTHING`

	insertPlayEvent = `INSERT INTO play_events
		(play_id, start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (play_id) DO NOTHING`

	selectSongKeys = `SELECT a.name, s.title, s.duration, s.song_id, s.artist_id
		FROM songs s JOIN artists a ON s.artist_id = a.artist_id`

	countResolved = `SELECT COUNT(*) FROM play_events
		WHERE song_id IS NOT NULL AND artist_id IS NOT NULL`
)

// Set-based merge for the bulk variant. Dedup of staged duplicates is
// keep-highest-surrogate (latest landed row wins), expressed with
// DISTINCT ON over the staging surrogate key.
var mergeStatements = []string{
	`INSERT INTO songs (song_id, title, artist_id, year, duration)
		SELECT DISTINCT ON (song_id) song_id, title, artist_id, year, duration
		FROM staging_songs
		WHERE song_id IS NOT NULL
		ORDER BY song_id, stage_id DESC
		ON CONFLICT (song_id) DO NOTHING`,

	`INSERT INTO artists (artist_id, name, location, latitude, longitude)
		SELECT DISTINCT ON (artist_id)
			artist_id, artist_name, artist_location, artist_latitude, artist_longitude
		FROM staging_songs
		WHERE artist_id IS NOT NULL
		ORDER BY artist_id, stage_id DESC
		ON CONFLICT (artist_id) DO UPDATE SET
			name      = EXCLUDED.name,
			location  = EXCLUDED.location,
			latitude  = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude`,

	`INSERT INTO users (user_id, first_name, last_name, gender, level)
		SELECT DISTINCT ON (user_id) user_id, first_name, last_name, gender, level
		FROM staging_events
		WHERE page = 'NextSong' AND user_id <> ''
		ORDER BY user_id, event_id DESC
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			gender     = EXCLUDED.gender,
			level      = EXCLUDED.level`,

	// UTC calendar buckets; ISO week, weekday Monday=0. Must agree exactly
	// with schema.NewTimeBucket.
	`INSERT INTO time_buckets (start_time, hour, day, week, month, year, weekday)
		SELECT DISTINCT ts,
			EXTRACT(hour FROM t)::int,
			EXTRACT(day FROM t)::int,
			EXTRACT(week FROM t)::int,
			EXTRACT(month FROM t)::int,
			EXTRACT(year FROM t)::int,
			EXTRACT(isodow FROM t)::int - 1
		FROM (
			SELECT ts, to_timestamp(ts / 1000.0) AT TIME ZONE 'UTC' AS t
			FROM staging_events WHERE page = 'NextSong'
		) s
		ON CONFLICT (start_time) DO NOTHING`,
}

// Fact insert: staged NextSong events joined against the merged dimensions
// on the natural triple. Ambiguous matches rank by (song_id, artist_id) so
// the winner matches the row-wise resolver's tie-break.
const insertFactsFromStage = `INSERT INTO play_events
	(play_id, start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
	SELECT e.play_id, e.ts, e.user_id, e.level,
	       m.song_id, m.artist_id, e.session_id, e.location, e.user_agent
	FROM staging_events e
	LEFT JOIN (
		SELECT name, title, duration, song_id, artist_id FROM (
			SELECT a.name, s.title, s.duration, s.song_id, s.artist_id,
			       ROW_NUMBER() OVER (
			           PARTITION BY a.name, s.title, s.duration
			           ORDER BY s.song_id, s.artist_id
			       ) AS rn
			FROM songs s JOIN artists a ON s.artist_id = a.artist_id
		) ranked WHERE rn = 1
	) m ON m.name = e.artist AND m.title = e.song AND m.duration = e.length
	WHERE e.page = 'NextSong' AND e.user_id <> ''
	ON CONFLICT (play_id) DO NOTHING`

package sqlite

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS songs (
		song_id   TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		artist_id TEXT NOT NULL,
		year      REAL,
		duration  REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		artist_id TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		location  TEXT,
		latitude  REAL,
		longitude REAL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		first_name TEXT,
		last_name  TEXT,
		gender     TEXT,
		level      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS time_buckets (
		start_time INTEGER PRIMARY KEY,
		hour       INTEGER NOT NULL,
		day        INTEGER NOT NULL,
		week       INTEGER NOT NULL,
		month      INTEGER NOT NULL,
		year       INTEGER NOT NULL,
		weekday    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS play_events (
		play_id    INTEGER PRIMARY KEY,
		start_time INTEGER NOT NULL,
		user_id    TEXT NOT NULL,
		level      TEXT,
		song_id    TEXT,
		artist_id  TEXT,
		session_id INTEGER,
		location   TEXT,
		user_agent TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS staging_songs (
		stage_id         INTEGER PRIMARY KEY,
		song_id          TEXT,
		title            TEXT,
		artist_id        TEXT,
		year             REAL,
		duration         REAL,
		artist_name      TEXT,
		artist_location  TEXT,
		artist_latitude  REAL,
		artist_longitude REAL
	)`,
	`CREATE TABLE IF NOT EXISTS staging_events (
		event_id        INTEGER PRIMARY KEY,
		artist          TEXT,
		auth            TEXT,
		first_name      TEXT,
		gender          TEXT,
		item_in_session INTEGER,
		last_name       TEXT,
		length          REAL,
		level           TEXT,
		location        TEXT,
		method          TEXT,
		page            TEXT,
		registration    REAL,
		session_id      INTEGER,
		song            TEXT,
		status          INTEGER,
		ts              INTEGER,
		user_agent      TEXT,
		user_id         TEXT,
		play_id         INTEGER
	)`,
}

const (
	insertSong = `INSERT INTO songs (song_id, title, artist_id, year, duration)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (song_id) DO NOTHING`

	insertArtist = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (artist_id) DO NOTHING`

	upsertUser = `INSERT INTO users (user_id, first_name, last_name, gender, level)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name  = excluded.last_name,
			gender     = excluded.gender,
			level      = excluded.level`

	insertTimeBucket = `INSERT INTO time_buckets (start_time, hour, day, week, month, year, weekday)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (start_time) DO NOTHING`

	insertPlayEvent = `INSERT INTO play_events
		(play_id, start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (play_id) DO NOTHING`

	selectSongKeys = `SELECT a.name, s.title, s.duration, s.song_id, s.artist_id
		FROM songs s JOIN artists a ON s.artist_id = a.artist_id`

	countResolved = `SELECT COUNT(*) FROM play_events
		WHERE song_id IS NOT NULL AND artist_id IS NOT NULL`
)

// Set-based merge for the bulk variant. Staged duplicates collapse to the
// row with the highest staging surrogate (keep-latest), the rank-and-filter
// counterpart of the Postgres DISTINCT ON form.
var mergeStatements = []string{
	`INSERT INTO songs (song_id, title, artist_id, year, duration)
		SELECT song_id, title, artist_id, year, duration
		FROM staging_songs
		WHERE song_id IS NOT NULL
		  AND stage_id IN (
			SELECT MAX(stage_id) FROM staging_songs
			WHERE song_id IS NOT NULL GROUP BY song_id
		  )
		ON CONFLICT (song_id) DO NOTHING`,

	`INSERT INTO artists (artist_id, name, location, latitude, longitude)
		SELECT artist_id, artist_name, artist_location, artist_latitude, artist_longitude
		FROM staging_songs
		WHERE artist_id IS NOT NULL
		  AND stage_id IN (
			SELECT MAX(stage_id) FROM staging_songs
			WHERE artist_id IS NOT NULL GROUP BY artist_id
		  )
		ON CONFLICT (artist_id) DO UPDATE SET
			name      = excluded.name,
			location  = excluded.location,
			latitude  = excluded.latitude,
			longitude = excluded.longitude`,

	`INSERT INTO users (user_id, first_name, last_name, gender, level)
		SELECT user_id, first_name, last_name, gender, level
		FROM staging_events
		WHERE page = 'NextSong' AND user_id <> ''
		  AND event_id IN (
			SELECT MAX(event_id) FROM staging_events
			WHERE page = 'NextSong' AND user_id <> '' GROUP BY user_id
		  )
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name  = excluded.last_name,
			gender     = excluded.gender,
			level      = excluded.level`,

	// UTC calendar buckets; %V is the ISO week and %u the ISO weekday
	// (Monday=1), shifted to the Monday=0 contract. Must agree exactly with
	// schema.NewTimeBucket.
	`INSERT INTO time_buckets (start_time, hour, day, week, month, year, weekday)
		SELECT DISTINCT ts,
			CAST(strftime('%H', ts / 1000, 'unixepoch') AS INTEGER),
			CAST(strftime('%d', ts / 1000, 'unixepoch') AS INTEGER),
			CAST(strftime('%V', ts / 1000, 'unixepoch') AS INTEGER),
			CAST(strftime('%m', ts / 1000, 'unixepoch') AS INTEGER),
			CAST(strftime('%Y', ts / 1000, 'unixepoch') AS INTEGER),
			CAST(strftime('%u', ts / 1000, 'unixepoch') AS INTEGER) - 1
		FROM staging_events
		WHERE page = 'NextSong'
		ON CONFLICT (start_time) DO NOTHING`,
}

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
		) WHERE rn = 1
	) m ON m.name = e.artist AND m.title = e.song AND m.duration = e.length
	WHERE e.page = 'NextSong' AND e.user_id <> ''
	ON CONFLICT (play_id) DO NOTHING`

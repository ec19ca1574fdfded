package sqlite

import (
	"context"
	"testing"

	"playetl/internal/schema"
	"playetl/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(context.Background(), storage.Config{
		Kind:             "sqlite",
		DSN:              ":memory:",
		AutoCreateTables: true,
	})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(repo.Close)

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return repo
}

func strptr(s string) *string { return &s }

func TestNewRepository_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewRepository(context.Background(), storage.Config{Kind: "sqlite"}); err == nil {
		t.Fatal("NewRepository() accepted an empty DSN")
	}
}

func TestUpsertSongs_Idempotent(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	songs := []schema.Song{
		{SongID: "S1", Title: "Setanta matins", ArtistID: "A1", Year: 0, Duration: 269.58187},
	}

	n, err := repo.UpsertSongs(ctx, songs)
	if err != nil {
		t.Fatalf("UpsertSongs() error = %v", err)
	}
	if n != 1 {
		t.Errorf("first insert affected %d rows; want 1", n)
	}

	// Same song again: insert-if-new makes the duplicate a no-op.
	n, err = repo.UpsertSongs(ctx, songs)
	if err != nil {
		t.Fatalf("UpsertSongs() second call error = %v", err)
	}
	if n != 0 {
		t.Errorf("second insert affected %d rows; want 0", n)
	}

	count, err := repo.CountRows(ctx, storage.TableSongs)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("songs rows = %d; want 1", count)
	}
}

func TestUpsertUsers_LatestWins(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.UpsertUsers(ctx, []schema.User{
		{UserID: "73", FirstName: "Jacob", LastName: "Klein", Gender: "M", Level: "free"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.UpsertUsers(ctx, []schema.User{
		{UserID: "73", FirstName: "Jacob", LastName: "Klein", Gender: "M", Level: "paid"},
	}); err != nil {
		t.Fatal(err)
	}

	var level string
	if err := repo.db.QueryRowContext(ctx,
		"SELECT level FROM users WHERE user_id = ?", "73").Scan(&level); err != nil {
		t.Fatal(err)
	}
	if level != "paid" {
		t.Errorf("level = %q; want paid (latest write wins)", level)
	}

	count, err := repo.CountRows(ctx, storage.TableUsers)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("users rows = %d; want 1", count)
	}
}

func TestInsertPlayEvents_DeterministicKeyDedup(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	play := schema.PlayEvent{
		PlayID:    -1234567890123,
		StartTime: 1543449657796,
		UserID:    "73",
		Level:     "paid",
		SessionID: 954,
	}

	n, err := repo.InsertPlayEvents(ctx, []schema.PlayEvent{play})
	if err != nil {
		t.Fatalf("InsertPlayEvents() error = %v", err)
	}
	if n != 1 {
		t.Errorf("first insert affected %d; want 1", n)
	}

	// Re-inserting the same play id (crash-resume case) is a no-op.
	n, err = repo.InsertPlayEvents(ctx, []schema.PlayEvent{play})
	if err != nil {
		t.Fatalf("re-insert error = %v", err)
	}
	if n != 0 {
		t.Errorf("re-insert affected %d; want 0", n)
	}
}

func TestSongKeys_JoinsArtistNames(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.UpsertArtists(ctx, []schema.Artist{
		{ArtistID: "A1", Name: "Elena"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.UpsertSongs(ctx, []schema.Song{
		{SongID: "S1", Title: "Setanta matins", ArtistID: "A1", Duration: 269.58187},
	}); err != nil {
		t.Fatal(err)
	}

	keys, err := repo.SongKeys(ctx)
	if err != nil {
		t.Fatalf("SongKeys() error = %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("SongKeys() returned %d keys; want 1", len(keys))
	}
	want := storage.SongKey{
		ArtistName: "Elena",
		Title:      "Setanta matins",
		Duration:   269.58187,
		SongID:     "S1",
		ArtistID:   "A1",
	}
	if keys[0] != want {
		t.Errorf("SongKeys()[0] = %+v; want %+v", keys[0], want)
	}
}

func TestCountRows_UnknownTable(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	if _, err := repo.CountRows(context.Background(), "sqlite_master; DROP TABLE songs"); err == nil {
		t.Fatal("CountRows() accepted an unknown table name")
	}
}

func TestCountResolvedPlays(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	plays := []schema.PlayEvent{
		{PlayID: 1, StartTime: 1, UserID: "10"},
		{PlayID: 2, StartTime: 2, UserID: "10", SongID: strptr("S1"), ArtistID: strptr("A1")},
	}
	if _, err := repo.InsertPlayEvents(ctx, plays); err != nil {
		t.Fatal(err)
	}

	n, err := repo.CountResolvedPlays(ctx)
	if err != nil {
		t.Fatalf("CountResolvedPlays() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountResolvedPlays() = %d; want 1", n)
	}
}

func TestStageMerge_EndToEnd(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	length := 269.58187
	metas := []schema.SongMeta{
		{
			SongID: "S1", Title: "Setanta matins", ArtistID: "A1",
			Year: 0, Duration: length, ArtistName: "Elena",
		},
		// Same artist staged again with a newer location; keep-latest wins.
		{
			SongID: "S2", Title: "Other", ArtistID: "A1",
			Year: 1994, Duration: 100, ArtistName: "Elena", ArtistLocation: "Dublin",
		},
	}
	if _, err := repo.StageSongs(ctx, metas); err != nil {
		t.Fatalf("StageSongs() error = %v", err)
	}

	events := []schema.LogEvent{
		{
			TS: 1542837407796, Page: schema.PageNextSong, UserID: "10",
			FirstName: "Sylvie", Level: "free", SessionID: 100,
			Artist: "Elena", Song: "Setanta matins", Length: &length,
		},
		{
			TS: 1542837500000, Page: schema.PageNextSong, UserID: "10",
			FirstName: "Sylvie", Level: "paid", SessionID: 100,
			Artist: "Nobody", Song: "Unknown", Length: &length,
		},
		{TS: 1542837600000, Page: "Home", UserID: "10"},
	}
	if _, err := repo.StageEvents(ctx, events); err != nil {
		t.Fatalf("StageEvents() error = %v", err)
	}

	if err := repo.MergeDimensions(ctx); err != nil {
		t.Fatalf("MergeDimensions() error = %v", err)
	}
	if err := repo.InsertFactsFromStage(ctx); err != nil {
		t.Fatalf("InsertFactsFromStage() error = %v", err)
	}

	// Dimensions.
	for table, want := range map[string]int64{
		storage.TableSongs:       2,
		storage.TableArtists:     1,
		storage.TableUsers:       1,
		storage.TableTimeBuckets: 2, // only NextSong timestamps
		storage.TablePlayEvents:  2, // only NextSong events with a user
	} {
		n, err := repo.CountRows(ctx, table)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Errorf("%s rows = %d; want %d", table, n, want)
		}
	}

	// Artist keep-latest: the Dublin location from the later staged row.
	var loc string
	if err := repo.db.QueryRowContext(ctx,
		"SELECT location FROM artists WHERE artist_id = ?", "A1").Scan(&loc); err != nil {
		t.Fatal(err)
	}
	if loc != "Dublin" {
		t.Errorf("artist location = %q; want Dublin", loc)
	}

	// User keep-latest: the second NextSong event has level paid.
	var level string
	if err := repo.db.QueryRowContext(ctx,
		"SELECT level FROM users WHERE user_id = ?", "10").Scan(&level); err != nil {
		t.Fatal(err)
	}
	if level != "paid" {
		t.Errorf("user level = %q; want paid", level)
	}

	// Fact resolution: exactly one event matched the song.
	resolved, err := repo.CountResolvedPlays(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != 1 {
		t.Errorf("resolved plays = %d; want 1", resolved)
	}

	// SQL time derivation must agree with the in-process derivation.
	want := schema.NewTimeBucket(1542837407796)
	var got schema.TimeBucket
	if err := repo.db.QueryRowContext(ctx,
		"SELECT start_time, hour, day, week, month, year, weekday FROM time_buckets WHERE start_time = ?",
		want.StartTime,
	).Scan(&got.StartTime, &got.Hour, &got.Day, &got.Week, &got.Month, &got.Year, &got.Weekday); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("merged time bucket = %+v; want %+v", got, want)
	}

	// Re-running the merge and fact insert must not duplicate anything.
	if err := repo.MergeDimensions(ctx); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertFactsFromStage(ctx); err != nil {
		t.Fatal(err)
	}
	n, err := repo.CountRows(ctx, storage.TablePlayEvents)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("play_events after re-merge = %d; want 2", n)
	}

	// ResetStaging clears the staging tables for the next run.
	if err := repo.ResetStaging(ctx); err != nil {
		t.Fatalf("ResetStaging() error = %v", err)
	}
	var staged int64
	if err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM staging_events").Scan(&staged); err != nil {
		t.Fatal(err)
	}
	if staged != 0 {
		t.Errorf("staging_events after reset = %d; want 0", staged)
	}
}

package storage

// Table names of the star schema.
const (
	TableSongs       = "songs"
	TableArtists     = "artists"
	TableUsers       = "users"
	TableTimeBuckets = "time_buckets"
	TablePlayEvents  = "play_events"
)

// Tables lists the five schema tables in load order.
var Tables = []string{TableSongs, TableArtists, TableUsers, TableTimeBuckets, TablePlayEvents}

// KnownTable reports whether name is one of the five schema tables. Backends
// use it to keep COUNT queries off arbitrary identifiers.
func KnownTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}

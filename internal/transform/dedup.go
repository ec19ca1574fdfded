package transform

// Policy selects the winner among duplicate keys.
type Policy string

const (
	// KeepFirst keeps the earliest occurrence in the batch. Used for
	// immutable dimensions (time buckets) where the first derivation stands.
	KeepFirst Policy = "keep-first"

	// KeepLast keeps the latest occurrence in the batch. Used for users so
	// the most recent subscription level wins within a unit.
	KeepLast Policy = "keep-last"
)

// DeDup collapses duplicate rows by key according to the policy. The output
// preserves input order by the winning occurrence's position, which keeps
// the result deterministic for a given input sequence.
func DeDup[T any](in []T, key func(T) string, policy Policy) []T {
	if len(in) < 2 {
		return in
	}

	type slot struct {
		row   T
		index int
	}
	winners := make(map[string]slot, len(in))
	for i, row := range in {
		k := key(row)
		switch policy {
		case KeepFirst:
			if _, exists := winners[k]; !exists {
				winners[k] = slot{row: row, index: i}
			}
		default: // KeepLast
			winners[k] = slot{row: row, index: i}
		}
	}

	out := make([]T, 0, len(winners))
	for i, row := range in {
		k := key(row)
		if w, ok := winners[k]; ok && w.index == i {
			out = append(out, row)
			delete(winners, k)
		}
	}
	return out
}

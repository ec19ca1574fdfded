package schema

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// PlayID computes the deterministic fact key for an event: an xxh3 hash of
// (session_id, ts, user_id). The same event always hashes to the same id,
// so re-inserting a fact after a crash is a no-op under conflict-ignore.
func (ev LogEvent) PlayID() int64 {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(ev.SessionID, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(ev.TS, 10))
	b.WriteByte('|')
	b.WriteString(ev.UserID)
	return int64(xxh3.HashString(b.String()))
}

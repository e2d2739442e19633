package cache

import (
	"sort"
	"time"
)

// Sweep returns the records whose lastSeen is not older than now-window, and
// the sorted ids of the ones it dropped. The input map is not modified.
func Sweep(records map[string]Record, now time.Time, window time.Duration) (map[string]Record, []string) {
	cutoff := now.Add(-window).UnixMilli()
	kept := make(map[string]Record, len(records))
	var removed []string
	for id, rec := range records {
		if rec.LastSeen < cutoff {
			removed = append(removed, id)
			continue
		}
		kept[id] = rec
	}
	sort.Strings(removed)
	return kept, removed
}

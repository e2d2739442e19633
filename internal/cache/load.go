package cache

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadStatus describes how the persisted cache was materialized.
type LoadStatus int

const (
	Loaded LoadStatus = iota
	Missing
	Corrupt
)

func (s LoadStatus) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Missing:
		return "missing"
	case Corrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("LoadStatus(%d)", int(s))
	}
}

// CorruptionWarning reports an unreadable or malformed cache document. It is
// never fatal: the run continues with an empty mapping.
type CorruptionWarning struct {
	Path string
	Err  error
}

func (w *CorruptionWarning) Error() string {
	return fmt.Sprintf("cache %s is unusable, starting empty: %v", w.Path, w.Err)
}

func (w *CorruptionWarning) Unwrap() error { return w.Err }

// LoadResult is the outcome of Load. Records is never nil.
type LoadResult struct {
	Status  LoadStatus
	Records map[string]Record
	Warning *CorruptionWarning
	// Dropped counts entries discarded for lacking a fingerprint or location.
	Dropped int
}

// Load reads the cache document at path. Missing, unreadable and malformed
// documents all yield an empty mapping.
func Load(path string) LoadResult {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadResult{Status: Missing, Records: map[string]Record{}}
		}
		return corrupt(path, err)
	}
	var doc map[string]Record
	if err := json.Unmarshal(raw, &doc); err != nil {
		return corrupt(path, err)
	}
	res := LoadResult{Status: Loaded, Records: make(map[string]Record, len(doc))}
	for id, rec := range doc {
		if id == "" || !rec.valid() {
			res.Dropped++
			continue
		}
		res.Records[id] = rec
	}
	return res
}

func corrupt(path string, err error) LoadResult {
	return LoadResult{
		Status:  Corrupt,
		Records: map[string]Record{},
		Warning: &CorruptionWarning{Path: path, Err: err},
	}
}

// Package mode defines the query dispatch modes.
package mode

// Mode selects how a raw query value is interpreted.
type Mode string

const (
	// Auto infers vector, fts, or hybrid from the query's shape.
	Auto Mode = "auto"
	// Vector runs nearest-neighbor search only.
	Vector Mode = "vector"
	// FTS runs full-text search only.
	FTS Mode = "fts"
	// Hybrid runs vector and full-text search and merges the results.
	Hybrid Mode = "hybrid"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case Auto, Vector, FTS, Hybrid:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

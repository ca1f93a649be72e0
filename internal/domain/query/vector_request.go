package query

// VectorSearchRequest is the request handed to a vector index collaborator
// for one query vector. The index returns a table carrying the projected
// columns plus _distance and, when WithRowID is set, _rowid.
type VectorSearchRequest struct {
	Vector       []float32
	Metric       Metric
	NProbes      int
	RefineFactor int
	Filter       string
	Prefilter    bool
	Limit        int // <= 0 means unbounded
	Columns      Projection
	WithRowID    bool
}

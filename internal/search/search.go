package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	FormType  string `json:"formType"`
	Status    string `json:"status"`
	Level     string `json:"level,omitempty"`
	TraineeID string `json:"traineeId"`
}

// Query describes a search request. TraineeID is always set by the caller so
// trainees only see their own evidence.
type Query struct {
	Text           string
	TraineeID      string
	FilterFormType string // empty = all form types
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over evidence.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push evidence into a search index.
type Indexer interface {
	IndexEvidence(rec EvidenceRecord) error
	DeleteEvidence(id string) error
}

// EvidenceRecord is the data we index for an evidence snapshot. Text holds
// the flattened payload values.
type EvidenceRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	FormType  string `json:"formType"`
	Status    string `json:"status"`
	Level     string `json:"level"`
	TraineeID string `json:"traineeId"`
}

// Package evaluation reads judgments, runs and set files, scores them in
// parallel shards and reports the results as TSV, JSON or over HTTP.
package evaluation

import (
	"sort"

	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/setscore"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

// Qrels maps a query ID to the graded relevance of its judged documents.
type Qrels map[string]map[string]float64

// Judgment is one graded relevance label.
type Judgment struct {
	QueryID   string  `json:"query_id"`
	DocID     string  `json:"doc_id"`
	Relevance float64 `json:"relevance"`
}

// Add records a judgment, replacing an earlier grade for the same pair.
func (q Qrels) Add(j Judgment) {
	if q[j.QueryID] == nil {
		q[j.QueryID] = make(map[string]float64)
	}
	q[j.QueryID][j.DocID] = j.Relevance
}

// Run holds one system's ranked documents per query.
type Run struct {
	// Order lists query IDs in first-seen order.
	Order    []string
	Rankings map[string][]string
}

// NewRun creates an empty run.
func NewRun() *Run {
	return &Run{Rankings: make(map[string][]string)}
}

// Append adds documents to the end of a query's ranking.
func (r *Run) Append(queryID string, docs ...string) {
	if _, ok := r.Rankings[queryID]; !ok {
		r.Order = append(r.Order, queryID)
		r.Rankings[queryID] = []string{}
	}
	r.Rankings[queryID] = append(r.Rankings[queryID], docs...)
}

// RunFromMap builds a run with queries in sorted order.
func RunFromMap(m map[string][]string) *Run {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	run := NewRun()
	for _, k := range keys {
		run.Append(k, m[k]...)
	}
	return run
}

// SetCollection holds labelled sets per document.
type SetCollection struct {
	// Order lists document keys in first-seen order.
	Order []string
	Sets  map[string][]setscore.Labeled[string]
}

// NewSetCollection creates an empty collection.
func NewSetCollection() *SetCollection {
	return &SetCollection{Sets: make(map[string][]setscore.Labeled[string])}
}

// Append adds a labelled set to a document.
func (c *SetCollection) Append(key, label string, items ...string) {
	if _, ok := c.Sets[key]; !ok {
		c.Order = append(c.Order, key)
		c.Sets[key] = []setscore.Labeled[string]{}
	}
	c.Sets[key] = append(c.Sets[key], setscore.Labeled[string]{
		Items: setscore.NewSet(items...),
		Label: label,
	})
}

// LabeledSet is the JSON form of one labelled set.
type LabeledSet struct {
	Label string   `json:"label,omitempty"`
	Items []string `json:"items"`
}

// SetCollectionFromMap builds a collection with documents in sorted order.
func SetCollectionFromMap(m map[string][]LabeledSet) *SetCollection {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := NewSetCollection()
	for _, k := range keys {
		if len(m[k]) == 0 {
			c.Order = append(c.Order, k)
			c.Sets[k] = []setscore.Labeled[string]{}
			continue
		}
		for _, s := range m[k] {
			c.Append(k, s.Label, s.Items...)
		}
	}
	return c
}

// Partial is the bus payload describing one scored shard.
type Partial struct {
	RunID  string        `json:"run_id"`
	Kind   snapshot.Kind `json:"kind"`
	Shard  int           `json:"shard"`
	Shards int           `json:"shards"`

	Ranking *ranking.Stats  `json:"ranking,omitempty"`
	Sets    *setscore.Stats `json:"sets,omitempty"`
}

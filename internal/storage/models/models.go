package models

import "time"

type Document struct {
	ID        int64
	Name      string
	FactCount int
	CreatedAt time.Time
	// Facts is populated on creation only.
	Facts []FactChunk
}

type FactChunk struct {
	ID         int64
	DocumentID int64
	Text       string
	Embedding  []float32
}

type ScoredFact struct {
	FactChunk
	// Distance is the L2 distance to the query embedding.
	Distance float64
}

func FactTexts(facts []ScoredFact) []string {
	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Text
	}
	return texts
}

package domain

// Answer is the result of one retrieval-augmented query. It is an
// explicit tagged result: the synthesised text plus the evidence the
// text was grounded on, in retrieval order.
type Answer struct {
	// Text is the synthesised answer, whitespace-trimmed.
	Text string

	// Evidence lists the retrieved records that backed the answer,
	// ordered by descending similarity.
	Evidence []Evidence
}

// Evidence is one retrieved record reference with its similarity score.
type Evidence struct {
	// RecordID is the canonical highlight record identity.
	RecordID string

	// Score is the similarity score reported by the index.
	Score float64
}

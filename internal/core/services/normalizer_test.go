package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func sourceWith(title string, highlights ...domain.RawHighlight) domain.SourceExport {
	return domain.SourceExport{
		Title:      strPtr(title),
		Highlights: highlights,
	}
}

func TestNormalize_BuildsCanonicalRecord(t *testing.T) {
	src := domain.SourceExport{
		UserBookID:    int64Ptr(42),
		Title:         strPtr("Thinking, Fast and Slow"),
		Author:        strPtr("Daniel Kahneman"),
		Category:      strPtr("books"),
		CoverImageURL: nil,
		BookTags:      []domain.Tag{{Name: "psychology"}, {Name: "favorites"}},
		Highlights: []domain.RawHighlight{
			{
				ID:            101,
				Text:          "System 1 operates automatically and quickly.",
				Note:          strPtr("core thesis"),
				HighlightedAt: strPtr("2024-03-01T10:00:00Z"),
				Tags:          []domain.Tag{{Name: "attention"}},
			},
		},
	}

	records := NewNormalizer().Normalize([]domain.SourceExport{src})
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "readwise_highlight_101", rec.ID)
	assert.Equal(t, "System 1 operates automatically and quickly.\n\nNote: core thesis", rec.Body)
	assert.Equal(t, int64(42), rec.Attributes["user_book_id"])
	assert.Equal(t, "Thinking, Fast and Slow", rec.Attributes["title"])
	assert.Equal(t, "Daniel Kahneman", rec.Attributes["author"])
	assert.Equal(t, "psychology, favorites", rec.Attributes["book_tags"])
	assert.Equal(t, "attention", rec.Attributes["highlight_tags"])
	assert.Equal(t, int64(101), rec.Attributes["highlight_id"])
	assert.Equal(t, "2024-03-01T10:00:00Z", rec.Attributes["highlighted_at"])
}

func TestNormalize_NoNoteLeavesBodyBare(t *testing.T) {
	src := sourceWith("A Book", domain.RawHighlight{ID: 1, Text: "plain text"})

	records := NewNormalizer().Normalize([]domain.SourceExport{src})
	require.Len(t, records, 1)
	assert.Equal(t, "plain text", records[0].Body)
}

func TestNormalize_EmptyNoteIsIgnored(t *testing.T) {
	src := sourceWith("A Book", domain.RawHighlight{ID: 1, Text: "plain text", Note: strPtr("")})

	records := NewNormalizer().Normalize([]domain.SourceExport{src})
	require.Len(t, records, 1)
	assert.Equal(t, "plain text", records[0].Body)
}

func TestNormalize_AbsentFieldsAreOmitted(t *testing.T) {
	src := domain.SourceExport{
		Title: strPtr("Sparse Source"),
		Highlights: []domain.RawHighlight{
			{ID: 7, Text: "some text"},
		},
	}

	records := NewNormalizer().Normalize([]domain.SourceExport{src})
	require.Len(t, records, 1)

	attrs := records[0].Attributes
	_, hasAuthor := attrs["author"]
	assert.False(t, hasAuthor, "absent author must not appear")
	_, hasColor := attrs["color"]
	assert.False(t, hasColor, "absent color must not appear")
	for k, v := range attrs {
		assert.NotNil(t, v, "attribute %q must never be nil", k)
	}
	// Tag fields are always present, empty string when no tags.
	assert.Equal(t, "", attrs["book_tags"])
	assert.Equal(t, "", attrs["highlight_tags"])
}

func TestNormalize_DuplicateIDFirstOccurrenceWins(t *testing.T) {
	sources := []domain.SourceExport{
		sourceWith("First",
			domain.RawHighlight{ID: 5, Text: "the original"},
		),
		sourceWith("Second",
			domain.RawHighlight{ID: 5, Text: "the impostor"},
			domain.RawHighlight{ID: 6, Text: "a genuine one"},
		),
	}

	records := NewNormalizer().Normalize(sources)
	require.Len(t, records, 2)
	assert.Equal(t, "the original", records[0].Body)
	assert.Equal(t, "readwise_highlight_5", records[0].ID)
	assert.Equal(t, "readwise_highlight_6", records[1].ID)
}

func TestNormalize_EmptyFirstOccurrenceBlocksLaterDuplicate(t *testing.T) {
	// The empty-text occurrence is dropped but its id still counts as
	// seen, so the later duplicate with real text is not admitted.
	sources := []domain.SourceExport{
		sourceWith("First", domain.RawHighlight{ID: 9, Text: "   "}),
		sourceWith("Second", domain.RawHighlight{ID: 9, Text: "real text now"}),
	}

	records := NewNormalizer().Normalize(sources)
	assert.Empty(t, records)
}

func TestNormalize_MissingIDSkippedWithoutMarking(t *testing.T) {
	src := sourceWith("A Book",
		domain.RawHighlight{Text: "no id at all"},
		domain.RawHighlight{ID: 3, Text: "has an id"},
	)

	records := NewNormalizer().Normalize([]domain.SourceExport{src})
	require.Len(t, records, 1)
	assert.Equal(t, "readwise_highlight_3", records[0].ID)
}

func TestNormalize_CountMatchesDistinctNonEmptyHighlights(t *testing.T) {
	sources := []domain.SourceExport{
		sourceWith("One",
			domain.RawHighlight{ID: 1, Text: "a"},
			domain.RawHighlight{ID: 2, Text: ""},
			domain.RawHighlight{ID: 3, Text: "c"},
			domain.RawHighlight{ID: 1, Text: "duplicate"},
		),
		sourceWith("Two",
			domain.RawHighlight{ID: 4, Text: "d"},
			domain.RawHighlight{Text: "missing id"},
		),
	}

	records := NewNormalizer().Normalize(sources)
	// ids 1, 3, 4 survive: 2 is empty, the second 1 is a duplicate and
	// the id-less entry is skipped.
	assert.Len(t, records, 3)
}

func TestNormalize_IsDeterministic(t *testing.T) {
	sources := []domain.SourceExport{
		sourceWith("One",
			domain.RawHighlight{ID: 1, Text: "a", Tags: []domain.Tag{{Name: "x"}, {Name: "y"}}},
			domain.RawHighlight{ID: 2, Text: "b"},
		),
		sourceWith("Two", domain.RawHighlight{ID: 3, Text: "c"}),
	}

	first := NewNormalizer().Normalize(sources)
	second := NewNormalizer().Normalize(sources)
	assert.Equal(t, first, second)
}

func TestNormalize_EmptyInput(t *testing.T) {
	assert.Empty(t, NewNormalizer().Normalize(nil))
	assert.Empty(t, NewNormalizer().Normalize([]domain.SourceExport{}))
	assert.Empty(t, NewNormalizer().Normalize([]domain.SourceExport{sourceWith("Empty Source")}))
}

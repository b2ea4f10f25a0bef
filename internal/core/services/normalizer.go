package services

import (
	"fmt"
	"strings"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// IdentityPrefix is prepended to the highlight id to form the record
// identity. The result is stable across ingestion runs, so re-ingesting
// the same highlight overwrites its stored record.
const IdentityPrefix = "readwise_highlight_"

// Normalizer converts raw export entries into canonical highlight
// records: one record per distinct, non-empty highlight, with flattened
// scalar attributes.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize walks every source and its highlights in export order and
// returns the canonical records.
//
// Deduplication is first-occurrence-wins on the highlight id: the first
// occurrence decides admission even when it is empty-text and dropped,
// so a later duplicate with real text is never admitted. Highlights
// with a missing id are skipped without being marked seen. A failure
// building one record is logged and does not abort the batch.
func (n *Normalizer) Normalize(sources []domain.SourceExport) []domain.HighlightRecord {
	logger.Info("Processing %d sources from export", len(sources))

	seen := make(map[int64]struct{})
	var records []domain.HighlightRecord

	for i := range sources {
		src := &sources[i]
		common := sourceAttributes(src)
		logger.Debug("Processing %d highlights for source %q", len(src.Highlights), titleOf(src))

		for j := range src.Highlights {
			h := &src.Highlights[j]

			if h.ID == 0 {
				logger.Warn("Skipping highlight with missing id in source %q: %+v", titleOf(src), *h)
				continue
			}
			if _, dup := seen[h.ID]; dup {
				logger.Debug("Skipping duplicate highlight id %d", h.ID)
				continue
			}
			if strings.TrimSpace(h.Text) == "" {
				// The id still counts as seen so a later duplicate
				// with real text is not retroactively admitted.
				seen[h.ID] = struct{}{}
				logger.Debug("Skipping highlight id %d: empty text", h.ID)
				continue
			}

			rec, err := buildRecord(common, h)
			if err != nil {
				logger.Error("Building record for highlight id %d failed: %v (data: %+v)", h.ID, err, *h)
				continue
			}
			seen[h.ID] = struct{}{}
			records = append(records, rec)
		}
	}

	logger.Info("Normalised %d sources into %d unique highlight records", len(sources), len(records))
	return records
}

// buildRecord assembles one canonical record from the source-level
// attributes and a single raw highlight.
func buildRecord(common map[string]any, h *domain.RawHighlight) (domain.HighlightRecord, error) {
	body := h.Text
	if h.Note != nil && *h.Note != "" {
		body += "\n\nNote: " + *h.Note
	}

	attrs := make(map[string]any, len(common)+6)
	for k, v := range common {
		attrs[k] = v
	}
	attrs["highlight_id"] = h.ID
	putString(attrs, "highlighted_at", h.HighlightedAt)
	putString(attrs, "highlight_url", h.URL)
	putString(attrs, "updated_at", h.UpdatedAt)
	putString(attrs, "color", h.Color)
	attrs["highlight_tags"] = joinTags(h.Tags)

	rec := domain.HighlightRecord{
		ID:         fmt.Sprintf("%s%d", IdentityPrefix, h.ID),
		Body:       body,
		Attributes: attrs,
	}
	if err := validateRecord(rec); err != nil {
		return domain.HighlightRecord{}, err
	}
	return rec, nil
}

// sourceAttributes collects the whitelisted scalar source fields that
// are present, plus the flattened book tag string. Computed once per
// source and copied into every highlight's attributes.
func sourceAttributes(src *domain.SourceExport) map[string]any {
	attrs := make(map[string]any, 10)
	if src.UserBookID != nil {
		attrs["user_book_id"] = *src.UserBookID
	}
	putString(attrs, "title", src.Title)
	putString(attrs, "author", src.Author)
	putString(attrs, "readable_title", src.ReadableTitle)
	putString(attrs, "source", src.Source)
	putString(attrs, "cover_image_url", src.CoverImageURL)
	putString(attrs, "unique_url", src.UniqueURL)
	putString(attrs, "category", src.Category)
	putString(attrs, "document_note", src.DocumentNote)
	// Empty string, not absent, when the tag set is empty.
	attrs["book_tags"] = joinTags(src.BookTags)
	return attrs
}

// putString stores the value only when the field is present. Absent
// fields are omitted entirely rather than stored as nil.
func putString(attrs map[string]any, key string, v *string) {
	if v != nil {
		attrs[key] = *v
	}
}

// joinTags flattens a tag set into a single deterministic delimited
// string so records stay representable in a flat key/scalar schema.
func joinTags(tags []domain.Tag) string {
	if len(tags) == 0 {
		return ""
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// validateRecord guards the invariants a stored record must satisfy.
func validateRecord(rec domain.HighlightRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty record identity", domain.ErrInvalidInput)
	}
	if rec.Body == "" {
		return fmt.Errorf("%w: empty record body", domain.ErrInvalidInput)
	}
	for k, v := range rec.Attributes {
		if v == nil {
			return fmt.Errorf("%w: nil attribute %q", domain.ErrInvalidInput, k)
		}
	}
	return nil
}

// titleOf returns the source title for log messages.
func titleOf(src *domain.SourceExport) string {
	if src.Title != nil {
		return *src.Title
	}
	return "(untitled)"
}

package domain

// Tag is a named label attached to a source or an individual highlight.
type Tag struct {
	Name string `json:"name"`
}

// SourceExport is one book/article entry from the Readwise export API.
// It is the raw, connector-level shape before normalisation. Optional
// fields are pointers so that "absent" and "empty" stay distinguishable.
type SourceExport struct {
	// UserBookID is the stable source identifier.
	UserBookID *int64 `json:"user_book_id"`

	// Title is the source title.
	Title *string `json:"title"`

	// Author is the source author.
	Author *string `json:"author"`

	// ReadableTitle is the display title.
	ReadableTitle *string `json:"readable_title"`

	// Source is the origin service (e.g. "kindle", "article").
	Source *string `json:"source"`

	// CoverImageURL is the cover reference.
	CoverImageURL *string `json:"cover_image_url"`

	// UniqueURL is the canonical URL of the source.
	UniqueURL *string `json:"unique_url"`

	// Category is the source category (e.g. "books", "articles").
	Category *string `json:"category"`

	// DocumentNote is the free-text note on the source itself.
	DocumentNote *string `json:"document_note"`

	// BookTags are the tags attached at the source level.
	BookTags []Tag `json:"book_tags"`

	// Highlights are the raw highlights nested in this source, in
	// export order.
	Highlights []RawHighlight `json:"highlights"`
}

// RawHighlight is a single excerpted passage as delivered by the export
// API, before deduplication and cleanup.
type RawHighlight struct {
	// ID is the stable highlight identifier. Zero means missing.
	ID int64 `json:"id"`

	// Text is the highlighted passage. May be empty or whitespace-only.
	Text string `json:"text"`

	// Note is the user's personal annotation, if any.
	Note *string `json:"note"`

	// HighlightedAt is the creation timestamp (RFC 3339 string as
	// delivered by the API).
	HighlightedAt *string `json:"highlighted_at"`

	// URL points at the highlight within the source, if any.
	URL *string `json:"url"`

	// UpdatedAt is the last-update timestamp, if any.
	UpdatedAt *string `json:"updated_at"`

	// Color is the highlight colour tag, if any.
	Color *string `json:"color"`

	// Tags are the tags attached to this highlight.
	Tags []Tag `json:"tags"`
}

// HighlightRecord is the canonical, deduplicated unit stored in the
// similarity index. Created once per ingestion run and never mutated.
type HighlightRecord struct {
	// ID is the globally unique identity, derived deterministically
	// from the highlight id. Re-ingesting the same highlight overwrites
	// the stored record rather than duplicating it.
	ID string

	// Body is the highlight text, with the personal note appended as a
	// distinguishable suffix when present.
	Body string

	// Attributes is a flat scalar metadata mapping. Values are only
	// strings or int64s; absent source fields are omitted entirely, so
	// key presence implies a meaningful value.
	Attributes map[string]any
}

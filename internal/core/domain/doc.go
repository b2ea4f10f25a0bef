// Package domain defines the core business entities for Marginalia.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceExport: one book or article from the raw highlight export
//   - RawHighlight: a single highlight as the export delivers it
//   - HighlightRecord: the canonical record stored in the vector store
//   - Answer: a synthesised answer with its supporting evidence
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain

// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - HighlightSource: fetches the raw paginated Readwise export
//   - EmbeddingService: turns text into vectors
//   - VectorStore: persists records and answers similarity queries
//   - LLMService: synthesises a final answer from retrieved evidence
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven

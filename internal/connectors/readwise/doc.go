// Package readwise implements the HighlightSource port against the
// Readwise export API. It walks the paginated /export/ endpoint,
// throttles requests proactively, and retries the same page when the
// API answers with a rate-limit response.
package readwise

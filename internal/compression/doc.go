// Package compression shrinks task artifacts to a character budget.
//
// The abstractive path asks the language model for a summary using the
// compression prompt. When no generator is configured, or generation fails,
// an extractive fallback keeps the highest-scoring sentences in their
// original order.
package compression

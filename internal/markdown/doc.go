// Package markdown incrementally segments a growing bot message into
// finalized, sanitized HTML blocks and a raw pending tail.
//
// A Segmenter is fed the full accumulated text on every update. Blocks
// that are structurally complete are rendered and memoized by their raw
// text. Settled blocks, which no appended text can change, never change on
// later calls; a trailing block that is final only for now, such as a
// paragraph ending in "3.", is re-segmented when more text arrives. Anything
// after the first incomplete block is returned verbatim as the pending tail
// so partial markup (an open code fence, an unbalanced $) is never rendered.
package markdown

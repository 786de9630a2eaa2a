// Package store archives conversation transcripts in SQLite.
//
// The archive is write-mostly: the channel saves user messages, completed
// bot messages and error entries as they happen, and the CLI reads them
// back for its history command. Streaming (typing) entries are never
// stored.
//
// Entries are keyed by channel and message id. Saving an id twice updates
// the stored entry in place and keeps its original position.
package store

// Package store persists analysis jobs in SQLite.
//
// A match row tracks one uploaded video through extracting, analyzing, and a
// final completed or failed status. Each merged chunk is recorded in
// chunk_results so an interrupted match resumes from the last merged chunk
// instead of re-sending every segment to the model.
//
// The database is transient job state, not an archive. Schema changes are
// added as numbered files under migrations/.
package store

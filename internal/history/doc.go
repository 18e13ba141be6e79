// Package history keeps the in-memory transcript and its remote document in
// step.
//
// A Reconciler is loaded once per session. Load looks the document up by name,
// decodes it and returns the transcript and model context to resume from.
// Every RecordTurn then appends one exchange and writes the whole accumulated
// document back, creating it when no handle exists or the old one vanished.
// A failed write never rolls the transcript back: the accumulator keeps the
// exchange, so the next successful write includes it.
package history

// Package memory holds the conversation data model and the plain-text codec
// used to persist it.
//
// Document format (one block per answered exchange):
//
//	Ty: <user text>
//
//	Gemini: <assistant text>
//	<blank>
//	<blank>
//
// Blocks are concatenated with no separator beyond their own terminator.
// Decoding is best-effort: blocks without both markers are dropped.
package memory

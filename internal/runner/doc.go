// Package runner drives one chat turn: the prompt goes to the model, and only
// an answered prompt is handed to the history for persistence.
//
// Flow:
//
//	user(text) -> model(reply) -> RecordTurn(text, reply)
//
// A model failure ends the turn with a *ModelError and records nothing. A
// persistence failure is reported on the Result and never fails the turn.
package runner

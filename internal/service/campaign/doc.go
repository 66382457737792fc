// Package campaign implements the campaign send state machine:
// draft -> pending_review (optional) -> ready_to_send -> sending -> sent,
// with a reversion to draft when the delivery job fails so the operator
// can retry. The optional review gate binds a single-use verification
// code to the campaign and only the assigned reviewer can approve with it.
//
// Sending is asynchronous: Send enqueues exactly one delivery job and
// returns immediately; the terminal transition to sent happens when the
// worker reports the job finished, never when the HTTP request returns.
package campaign

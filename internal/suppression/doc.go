// Package suppression enforces the do-not-mail rules before any dispatch.
//
// Hard and soft bounce entries suppress an address globally, across every
// tenant. Complaint entries suppress only sends from the tenant that
// received the complaint. The filter re-reads the store on every run because
// webhook handlers add entries between job enqueue and job processing.
// Checking at send time, not queue time, is the correctness-critical part.
package suppression

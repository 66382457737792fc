// Package dispatch sends one message at a time through the provider
// registry, enforcing per-provider rate limits, retrying transient failures
// per each provider's policy, and failing over to the next-priority provider
// when retries exhaust.
//
// The rate limiter is the one genuinely shared mutable resource in the
// delivery core: every concurrent send across every job acquires from it.
// Two implementations exist: an in-process token bucket, and a Redis-backed
// bucket for sharing one outbound quota across processes.
package dispatch

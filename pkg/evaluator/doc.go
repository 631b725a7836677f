// Package evaluator matches a recommendation against the rule registry.
//
// Candidates come from the registry in priority order. For each candidate
// every gate is evaluated (price limits, margin, cooldown, daily cap, active
// hours) so that a rejected rule carries the full list of reasons. The first
// candidate that passes all gates wins and its action decides the outcome.
//
// The evaluator reads the history log but never writes it. Callers that act
// on a Result must hold the per-product lock across Evaluate and the
// resulting history append.
package evaluator

// Package decision owns the DecisionRequest lifecycle.
//
//	pending ──► applied | rejected | manual_review | expired
//	manual_review ──► applied | rejected | expired
//
// Every transition is one-way. Applying a price is two-phase: BeginApply
// records the history entry and marks the request in flight while the
// caller holds the product lock; FinishApply invokes the PriceSink without
// any lock held, then re-locks to either complete the transition or roll it
// back to manual review. A settle the store refuses keeps the request in
// flight until Reconcile persists it.
package decision

// Package pricing defines the data model shared by every stage of the
// pricing decision engine.
//
// # Overview
//
// A Recommendation enters the engine, is matched against Rules, passes the
// risk controls and leaves as a DecisionRequest. Every applied change leaves a
// HistoryEntry behind, and the history log is the single source of truth for
// cooldown and daily-cap checks.
//
// # Lifecycle
//
//	pending ──► applied
//	   │  └───► rejected
//	   └──────► manual_review ──► applied | rejected
//	pending | manual_review ──► expired
//
// Terminal statuses (applied, rejected, expired) are final. Transitions are
// validated by Status.CanTransitionTo.
//
// # Arithmetic
//
// Percentages are carried as signed fractions (0.10 == 10%). ChangePct,
// ProfitMargin and SamePrice use decimal arithmetic so that 100.0 → 90.0 is
// exactly a 10% decrease and never 9.999999%.
package pricing

// Package engine is the entry point of the pricing decision engine.
//
// Engine wires the rule registry, history tracker, evaluator, risk layer,
// decision state machine and approval coordinator. Every recommendation is
// processed under a per-product lock: the open-request conflict check, rule
// evaluation, risk assessment and history reservation happen atomically for
// the product, while price writes and notifications run after the lock is
// released.
//
// Basic usage:
//
//	eng, err := engine.New(engine.Config{
//		Rules:     registry,
//		Tracker:   tracker,
//		Decisions: decisionStore,
//		Sink:      priceSink,
//	})
//	req, err := eng.Evaluate(ctx, rec, pricing.MarketSignals{})
package engine

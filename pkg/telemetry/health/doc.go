// Package health serves liveness and readiness probes for the engine
// service.
//
// Components register a CheckFunc under a name. Readiness runs every check
// concurrently with a per-check timeout and answers 503 when any check
// fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("engine", func(ctx context.Context) error {
//		return eng.Halted()
//	})
//	mux.HandleFunc("/healthz", checker.LivenessHandler())
//	mux.HandleFunc("/readyz", checker.ReadinessHandler())
//
// A halted engine, an unreachable store or a disconnected NATS client all
// take the replica out of rotation without restarting it; liveness only
// reports that the process is serving HTTP.
package health

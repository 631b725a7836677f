// Package risk implements the global circuit-breaker pass that runs after a
// rule has matched.
//
// Controls are evaluated independently and every trigger is recorded. The
// final disposition is the most conservative one among the triggered
// controls: Block beats RequireApproval beats Allow. A control whose action
// is freeze_all also opens a freeze window during which every assessment is
// blocked.
package risk

// PriceGate is a guarded decision engine for automated price changes.
//
// It takes externally computed price recommendations, checks them against
// operator-defined pricing rules and global risk controls, and either
// applies the new price, routes it to a human for approval, or rejects it.
//
// Usage:
//
//	# Run the engine service (NATS ingestion, expiry sweep, metrics)
//	pricegate run --config pricegate.yaml
//
//	# Evaluate a file of recommendations once
//	pricegate evaluate --file recommendations.json
//
//	# Review decisions waiting on a human
//	pricegate pending
//	pricegate approve 5b0c... --approver ops@example.com
//
//	# Validate a rules file
//	pricegate rules lint --file rules.yaml
package main

func main() {
	Execute()
}

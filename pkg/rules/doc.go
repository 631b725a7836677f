// Package rules holds the pricing rule registry.
//
// The registry is read-mostly: rules are added, removed or reloaded rarely
// while Find runs for every recommendation. Rules live behind the Store
// interface so the in-memory store can be swapped for a persistent one
// without touching evaluation code.
//
// # Matching
//
// Find excludes a rule when:
//   - the product is listed in ExcludedProducts
//   - Categories is non-empty and the recommendation's category is not in it
//   - the confidence is outside [MinConfidence, MaxConfidence]
//   - the rule is disabled
//   - the rule has a JSONLogic Condition that does not evaluate to true
//
// Candidates come back sorted by Priority ascending, ties broken by ID.
//
// # Files
//
// LoadFile reads rules from YAML:
//
//	rules:
//	  - id: clearance-auto
//	    priority: 10
//	    min_confidence: 0.85
//	    max_price_increase_pct: 0.10
//	    max_price_decrease_pct: 0.20
//	    cooldown_hours: 6
//	    max_changes_per_day: 3
//	    action: apply_immediately
//	    condition: {">": [{"var": "inventory_level"}, 100]}
//
// Watcher reloads the registry when the file changes.
package rules

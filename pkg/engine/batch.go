package engine

import (
	"context"
	"sync"

	"mercator-hq/pricegate/pkg/pricing"
)

// BatchResult pairs a recommendation with its decision or error.
type BatchResult struct {
	Recommendation pricing.Recommendation
	Decision       *pricing.DecisionRequest
	Err            error
}

// EvaluateBatch evaluates a catalog cycle. Recommendations for the same
// product are processed in submission order; different products run on up
// to workers goroutines. Results keep the input order.
func (e *Engine) EvaluateBatch(ctx context.Context, recs []pricing.Recommendation, signals pricing.MarketSignals, workers int) []BatchResult {
	return e.EvaluateBatchFunc(ctx, recs, signals, workers, nil)
}

// EvaluateBatchFunc is EvaluateBatch with a callback invoked after each
// recommendation settles. done runs on worker goroutines.
func (e *Engine) EvaluateBatchFunc(ctx context.Context, recs []pricing.Recommendation, signals pricing.MarketSignals, workers int, done func(int, BatchResult)) []BatchResult {
	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchResult, len(recs))
	byProduct := make(map[string][]int)
	var order []string
	for i, rec := range recs {
		results[i].Recommendation = rec
		if _, ok := byProduct[rec.ProductID]; !ok {
			order = append(order, rec.ProductID)
		}
		byProduct[rec.ProductID] = append(byProduct[rec.ProductID], i)
	}

	work := make(chan []int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for indexes := range work {
				for _, i := range indexes {
					if err := ctx.Err(); err != nil {
						results[i].Err = err
					} else {
						results[i].Decision, results[i].Err = e.Evaluate(ctx, recs[i], signals)
					}
					if done != nil {
						done(i, results[i])
					}
				}
			}
		}()
	}

	for _, productID := range order {
		work <- byProduct[productID]
	}
	close(work)
	wg.Wait()
	return results
}

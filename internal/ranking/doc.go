// Package ranking scores and orders feed candidates with a multiplicative model of
// independent step-function factors.
//
// Basic Usage:
//
//	// Build the registry once at startup (optionally calibrated from a file)
//	registry, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Fatal(err) // malformed factor tables are fatal
//	}
//	engine := ranking.NewEngine(registry)
//
//	// Rank a candidate set for one request
//	ids, err := engine.Rank(ctx, candidates, ranking.Config{
//		SelectedFactors: []string{"daily_decay", "spaminess"},
//	}, 50, 1)
//
// Factors:
//
// Each factor reads one feature value from a candidate and maps it to a weight
// through an exact-match step table, falling back to a fixed weight when no
// threshold matches. The composite score is the product of the active factors'
// weights, so any factor can suppress an item but none can boost it above the
// others' product.
//
// Selection:
//
// Request configuration may only select among registered factors and tune
// their step tables. The feature a factor reads always comes from the registry.
//
// Ordering:
//
// The top N candidates by (score desc, published_at desc, id asc) form the
// result window, which is then presented newest first.
package ranking

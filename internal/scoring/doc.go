// Package scoring holds the pure parts of judging: criteria and score
// validation, weighted totals, participant aggregation, ranking and rank
// deltas. Nothing here touches storage.
package scoring

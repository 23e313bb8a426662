// Package engine matches facts against policies and merges the outputs of
// every matching policy into one authoritative record per category.
//
// # Overview
//
// Evaluation is a pure function of (snapshot, category, fact):
//
//  1. MatchPolicies keeps published policies whose condition holds and
//     orders them by ascending priority (input order breaks ties; policies
//     without a priority come last).
//  2. The Resolver merges their outputs field by field using the strategy
//     declared by the earliest matched policy, then the category default,
//     then Last.
//  3. With no match, the category's base output is returned.
//
// Any condition or merge failure fails the whole evaluation. A failed
// evaluation is never reported as an empty match.
//
// # Merge strategies
//
//   - max, min: numeric fields, over the policies that set the field
//   - sum: numeric fields; policies omitting the field contribute 0
//   - first, last: value from the earliest or latest setter
//   - union: ordered, deduplicated union for sets; logical OR for booleans
//
// # Strategy conflicts
//
// When two matched policies declare different strategies for one field the
// earliest wins and the others are reported as StrategyConflict values and
// logged at warn level. Values are still taken from every matched policy.
// Domain owners should review such conflicts; they usually mean two policies
// were authored with different intent for the same field.
//
// # Concurrency
//
// Engine and Snapshot are safe for concurrent use. EvaluateBatch shards facts
// across a bounded worker pool.
//
// # Basic Usage
//
//	snap, err := engine.NewSnapshot(reg, policy.DefaultCatalog(), policies, "v1")
//	if err != nil {
//	    return err
//	}
//	eng, _ := engine.New(engine.DefaultEngineConfig(), logger, nil)
//	result, err := eng.Evaluate(ctx, policy.CategoryEscort, snap, fact)
package engine

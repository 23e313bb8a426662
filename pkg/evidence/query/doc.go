// Package query validates evidence queries before they reach storage.
//
//	q := &evidence.Query{Category: "escort", Outcome: "matched"}
//	query.ApplyDefaults(q, cfg.Evidence.Query.DefaultLimit)
//	if err := query.Validate(q, cfg.Evidence.Query.MaxLimit); err != nil {
//	    return err // *evidence.QueryError
//	}
//	records, err := store.Query(ctx, q)
package query

// Package parser reads rule bundles from YAML and builds the typed attribute
// registry, category catalog, policies and embedded test cases.
//
// # Bundle Format
//
//	version: "2025.06"
//	attributes:
//	  - name: width_ft
//	    kind: number
//	    unit: ft
//	  - name: road_type
//	    kind: enum
//	    values: [interstate, state, local]
//	categories:
//	  escort:
//	    fields:
//	      flag_car: {kind: boolean, strategy: union, default: false}
//	policies:
//	  - id: tx-wide-load
//	    category: escort
//	    priority: 10
//	    when:
//	      all:
//	        - {attr: width_ft, op: gt, value: 12}
//	        - {attr: road_type, op: in, value: [state, local]}
//	    output:
//	      front_escorts: 1
//	    merge:
//	      front_escorts: max
//	tests:
//	  - name: wide load on a state road
//	    category: escort
//	    fact: {width_ft: 14, road_type: state}
//	    expect:
//	      matched: [tx-wide-load]
//	      output: {front_escorts: 1}
//
// A `when` list is shorthand for `all`. A policy without `when` always
// applies. Status defaults to published.
//
// # Usage
//
//	b, err := parser.NewParser().ParseFile("rules/texas.yaml")
//	if err != nil {
//	    var list *parser.ErrorList
//	    if errors.As(err, &list) {
//	        for _, e := range list.Errors {
//	            fmt.Println(e)
//	        }
//	    }
//	    return err
//	}
//	snap, err := engine.NewSnapshot(b.Registry, b.Catalog, b.Policies, b.Version)
//
// Every problem in a bundle is reported in one pass, sorted by location.
// Misspelt attribute names, keys and categories carry a suggestion.
package parser

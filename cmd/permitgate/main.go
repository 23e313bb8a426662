// Permitgate evaluates oversize/overweight permit rules.
//
// Rule bundles declare typed attributes, output categories and the policies
// that apply to them. Given a fact about a load, permitgate finds the
// matching policies of a category and merges their outputs into one record.
//
// Usage:
//
//	# Serve the HTTP evaluation API
//	permitgate serve --config /etc/permitgate/config.yaml
//
//	# Evaluate a fact from the command line
//	permitgate evaluate --bundle rules/ --category escort --fact width_ft=14
//
//	# Check bundle files for errors
//	permitgate lint rules/
//
//	# Run the test cases embedded in a bundle
//	permitgate test rules/
//
//	# Store a bundle version in the sqlite bundle store
//	permitgate bundle import --version 2026-03 rules/
//
//	# Query evaluation evidence
//	permitgate evidence query --category escort --outcome matched
package main

func main() {
	Execute()
}

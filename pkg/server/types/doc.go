// Package types defines the JSON request and response bodies of the
// evaluation API, including the error envelope shared by every endpoint.
package types

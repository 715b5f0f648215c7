// Package httputil provides the JSON response and request helpers shared by
// the dispatch control API handlers.
package httputil

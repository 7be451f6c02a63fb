// Package httputil holds the JSON response and request helpers shared by
// the import API handlers, so every endpoint renders errors the same way.
package httputil

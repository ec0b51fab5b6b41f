// Package http exposes a ctxstore.IContextStore as a small JSON API.
//
// Routes:
//
//	GET    /scopes/{scope}/keys                 list keys
//	GET    /scopes/{scope}/values?key=a&key=b   read one value or an array of values
//	PUT    /scopes/{scope}/values               write all fields of a JSON object
//	DELETE /scopes/{scope}/values/{key}         remove a key
//	DELETE /scopes/{scope}                      remove the scope (202, fire-and-forget)
//	POST   /clean                               housekeeping, body: JSON array of node names
//	GET    /metrics                             Prometheus metrics
//
// Errors are answered with {"error": "...", "code": "..."} and a status derived from
// the error kind.
package http

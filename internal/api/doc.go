// Package api implements the HTTP handlers for the task tracker, translating
// between the JSON wire format and the service layer, and mapping internal
// errors to sanitized HTTP responses.
package api

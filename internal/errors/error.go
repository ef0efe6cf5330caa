// Package errors is the webhook boundary's typed error hierarchy: one
// Go type per error kind, each carrying the HTTP status and response
// body the ingestion route answers with.
package errors

// WebhookError is implemented by every error kind that can cross the
// webhook HTTP boundary. Status and Body determine the response; Loud
// distinguishes the error-level logs (internal failures) from the
// warn-level ones (client/verification faults).
type WebhookError interface {
	error
	Status() int
	Body() string
	Loud() bool
}

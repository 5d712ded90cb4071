// Package server provides the HTTP surface of the clip compiler: job push
// delivery, job state polling and local artifact download.
package server

// SubmitResponse is returned by POST /jobs when a delivery is a duplicate.
type SubmitResponse struct {
	// JobID identifies the job.
	JobID string `json:"jobId"`
	// Status is the job's current status.
	Status string `json:"status"`
	// Skipped is true when the delivery was ignored.
	Skipped bool `json:"skipped"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// Package api implements the HTTP and WebSocket surface of KeyRhythm.
//
// This package provides:
//   - POST /api/register and POST /api/login, the verification endpoints
//   - GET /api/v1/capture, a WebSocket that drives a capture loop per page
//   - GET /api/v1/attempts, the caller's own attempt history (bearer JWT)
//   - Health and metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Responses
//
// The verification endpoints always answer with {"ok", "message"}. Messages
// come from auth.Message and never carry internal detail; the status code
// distinguishes validation (400), conflicts (409), unknown users (404),
// credential mismatches (401) and storage failures (500).
//
// # Capture socket
//
// Client frames:
//
//	{"type":"keydown","field":"password","key":"a","t":1532.4}
//	{"type":"keyup","field":"password","key":"a","t":1601.0}
//	{"type":"retry"}
//	{"type":"mode","mode":"register"}
//	{"type":"submit","username":"alice","password":"...","confirm":"..."}
//
// Server frames: elapsed, limit, result, reset and error. Client timestamps
// are milliseconds on any monotonic clock; they are mapped onto the server
// clock by a fixed offset taken from the first timestamped frame.
package api

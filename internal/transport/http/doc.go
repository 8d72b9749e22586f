// Package http implements the HTTP handlers for both sides of the license
// system: the key server (registry document, first-use bindings and the
// bearer-guarded key management API) and the client session host (activation,
// status, fingerprint and the license-gated macro session endpoints).
//
// Handlers stay thin. They decode and validate the request, call the
// domain service and render the outcome with go-chi/render. Every failure is
// rendered as an RFC 7807 problem document carrying the request trace id:
//
//	{
//	    "type": "/errors/license/device-mismatch",
//	    "title": "License Bound To Another Device",
//	    "status": 409,
//	    "detail": "This license is already bound to a different device. ...",
//	    "instance": "/api/license#trace-...",
//	    "trace_id": "...",
//	    "error_code": "DEVICE_MISMATCH"
//	}
//
// Handlers are tested with httptest against fakes of the service interfaces
// declared in this package.
package http

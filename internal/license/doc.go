// Package license implements the validating side of the device-bound license
// scheme: token decoding, registry authority checks, first-use device
// binding, the local activation file and periodic revalidation.
//
// # Architecture Overview
//
// The license system consists of several components:
//
//	- Token codec: EncodeToken / DecodeToken
//	- Manager: the validation state machine behind Activate and IsCurrentlyValid
//	- StateStore: the local activation file (one token, last proven valid)
//	- CachedRegistry: the locally cached registry, refreshed from a registry channel
//	- Monitor: the background revalidation loop
//
// # Token Format
//
// A token is
//
//	base64(key "|" expires_rfc3339 "|" hwid) "." hex(sha256(base64))[:16]
//
// An unbound hwid is written as the literal "None". The trailing tag only
// detects accidental or casual edits. Anyone who can read this package can
// mint a token with a matching tag, so the token is not a security boundary:
// authority comes from the registry record, and the token merely names a key.
// In particular an activation token may carry any hwid the sender chooses;
// activation rejects a token hwid that differs from the current device, but
// nothing ties the token cryptographically to a registry record.
//
// # Validation Flow
//
// Activation and revalidation run the same state machine:
//
//	1. Decode the presented token or the local activation file
//	2. Refresh the registry (best effort, falls back to the cached copy)
//	3. Look up the key                    -> KeyNotFound
//	4. Reject revoked records             -> Revoked
//	5. Reject records past expiry         -> Expired
//	6. Bind an unbound record to this device, or reject another device's
//	   binding                            -> DeviceMismatch
//	7. Commit: write the activation file on success, delete it on any failure
//
// Passes are serialized by the Manager, so the revalidation loop and a
// manual activation never touch the activation file at the same time.
//
// # Error Handling
//
// Every failure collapses into Result{Valid: false} with a human readable
// Reason and the classified error in Err. Channel failures during refresh are
// logged and never invalidate a license on their own.
package license

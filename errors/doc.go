// Package errors provides standardized error handling patterns for docmesh.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or configuration, not retryable) and Fatal (stop processing).
// The resilience transport retries only transient errors, and configuration
// loading surfaces invalid errors at startup instead of clamping values.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if total > limit {
//	    return errors.ErrDocumentTooLarge
//	}
//
// Wrap errors with component context:
//
//	if err := store.Set(name, doc); err != nil {
//	    return errors.WrapTransient(err, "Scheduler", "refreshGroup", "store document")
//	}
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    // retry with backoff
//	}
//
// Wrapped errors keep the "component.method: action failed: cause" shape so
// log lines read the same across packages.
package errors

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the authentication service over HTTP.
//
// The package is thin plumbing around internal/auth: handlers bind JSON,
// call the service, and shape responses; the session gate middleware is
// the only admission check for protected routes. Error responses carry
// fixed, non-detailed messages - persistence faults are logged internally
// and surfaced as a generic failure.
package httpapi

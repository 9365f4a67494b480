// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides credential verification and session management
// for Gatehouse.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their respective
// constructors:
//   - NewUser - creates a User with validated username and password hash
//   - NewSession - creates a Session with validated principal and expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Service
//
// Service coordinates the domain operations: Register, Login, Logout and
// ValidateSession. It is created with NewService, which validates its
// dependencies. The user directory and session store are injected as
// repository interfaces; swapping backends (PostgreSQL, Redis, mocks)
// requires no service changes.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when a username is already taken.
// The user directory enforces uniqueness; repositories wrap their
// backend's constraint violation with this sentinel.
var ErrDuplicateUsername = errors.New("username already taken")

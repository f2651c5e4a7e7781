// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrPermissionDenied indicates a missing, inactive, or expired scan grant.
	// Absence of permission is a normal, reported outcome, not an exceptional
	// one; the boundary maps it to a generic denial.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited indicates the per-actor scan rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrManifestExpired indicates a manifest past its expiry horizon; the
	// device must re-fetch before offline validation is trusted again.
	ErrManifestExpired = errors.New("manifest expired")

	// ErrManifestInvalid indicates a manifest whose signature does not verify
	// or whose entries were tampered with or transplanted onto another event.
	ErrManifestInvalid = errors.New("manifest invalid")
)

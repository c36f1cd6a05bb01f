package svc

import "errors"

// ErrNoArchive is returned when an archive-backed command runs without an
// archive driver configured.
var ErrNoArchive = errors.New("no archive backend configured")

package repository

import "errors"

// ErrNotFound is wrapped by repositories when a row does not exist, so
// services can map it to a 404 without string matching.
var ErrNotFound = errors.New("not found")

package service

import "errors"

// Stage error sentinels. Every failure a run can hit wraps exactly one of
// these, so the entry point can map any error to a non-zero exit while tests
// can tell the stages apart with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrQuery         = errors.New("query error")
	ErrUpload        = errors.New("upload error")
	ErrLoadJob       = errors.New("load job error")
)

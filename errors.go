package ringcache

import "errors"

// ErrResolverFailed wraps an error returned by a Resolver. Nothing is
// installed into the ring when this occurs; the caller of Get/GetMany sees
// the wrapped error and the core does not retry automatically.
var ErrResolverFailed = errors.New(`ringcache: resolver failed`)

// ErrMalformedResult is returned when a resolver result cannot be
// reconciled with the keys it was asked to resolve. The Resolver type is
// statically shaped, so the only place this package returns it is the
// defensive type check on the shared result of a coalesced single-key
// resolution (see WithSingleflightCoalescing).
var ErrMalformedResult = errors.New(`ringcache: malformed resolver result`)

// ErrInvalidConfig is returned by Open when bucket_count or
// generation_period is out of range.
var ErrInvalidConfig = errors.New(`ringcache: invalid configuration`)

func wrapResolverErr(err error) error {
	if err == nil {
		return nil
	}
	return &resolverError{err: err}
}

type resolverError struct{ err error }

func (e *resolverError) Error() string { return ErrResolverFailed.Error() + `: ` + e.err.Error() }
func (e *resolverError) Unwrap() error { return e.err }
func (e *resolverError) Is(target error) bool { return target == ErrResolverFailed }

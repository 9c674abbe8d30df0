package ringcache

import (
	"io"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// event is the logiface event type this package logs through. Swapping
// backends (e.g. to a different izerolog-style adapter) only touches this
// alias.
type event = izerolog.Event

// logger is the shape Cache holds onto: a *logiface.Logger[*izerolog.Event]
// supplied via WithLogger, or the zero-value logiface.New[*izerolog.Event]()
// default (see newNilLogger) when WithLogger is never called.
//
// A Logger with no writer option set answers false to every canLog check,
// so Build always returns nil, and every chained field/Log call on a nil
// *Builder is a documented no-op (Builder.Enabled reports false for a nil
// receiver). Disabled logging therefore costs one nil check per call site,
// never a branch at every call site.
type logger = logiface.Logger[*event]

func newNilLogger() *logger {
	return logiface.New[*event]()
}

// NewZerologLogger constructs a *logger backed by a real zerolog.Logger
// writing JSON records to w, via izerolog's WithZerolog option. Pass the
// result to WithLogger to wire actual log output into a Cache, e.g.:
//
//	ringcache.Open(ringcache.WithLogger[K, V](ringcache.NewZerologLogger(os.Stderr)))
func NewZerologLogger(w io.Writer) *logger {
	return logiface.New[*event](izerolog.WithZerolog(zerolog.New(w)))
}

// logRotation emits the single rotation log record called for by this
// package's ambient logging contract: one record per generation rollover,
// naming the expiring bucket, how many entries it held, and the ring's new
// newest/oldest identifiers.
func logRotation(l *logger, name string, report rotationReport) {
	l.Info().
		Str(`cache`, name).
		Int64(`expiring_bucket_id`, int64(report.expiringBucketID)).
		Int64(`size_before_clear`, int64(report.sizeBeforeClear)).
		Int64(`new_newest_bucket_id`, int64(report.newNewestID)).
		Int64(`new_oldest_bucket_id`, int64(report.newOldestID)).
		Log(`ringcache: generation rotated`)
}

// logResolverFailure emits a single record when a Resolver invocation
// returns an error; the error itself is not retried automatically.
func logResolverFailure(l *logger, name string, err error) {
	l.Err().
		Str(`cache`, name).
		Err(err).
		Log(`ringcache: resolver failed`)
}

// logMalformedResult emits a single record when a resolver result cannot
// be reconciled with the keys it was asked to resolve.
func logMalformedResult(l *logger, name string, err error) {
	l.Warning().
		Str(`cache`, name).
		Err(err).
		Log(`ringcache: malformed resolver result`)
}

package avro

import (
	"context"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v4"
)

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Logger receives a debug event for each plan built. Defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver builds and caches resolution plans. Plans are keyed by the pair of
// schema forms that affect decoding, so two structurally identical pairs from
// different parse sessions share one plan. It is safe for concurrent use and
// computes each plan at most once.
type Resolver struct {
	plans  *xsync.Map[planKey, planEntry]
	logger *slog.Logger
}

type planKey struct {
	writer string // canonical form
	reader string // canonical form plus aliases and defaults
}

type planEntry struct {
	plan *ResolutionPlan
	err  error
}

// NewResolver returns an empty Resolver. opts may be nil.
func NewResolver(opts *ResolverOptions) *Resolver {
	var o ResolverOptions
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Resolver{
		plans:  xsync.NewMap[planKey, planEntry](),
		logger: o.Logger,
	}
}

// Resolve returns the plan for decoding data written with writer into the
// shape of reader. Failures are cached as well and return the same
// *SchemaIncompatibleError on every call.
func (r *Resolver) Resolve(writer, reader *Schema) (*ResolutionPlan, error) {
	key := planKey{writer: writer.Canonical(), reader: reader.resolutionForm()}
	entry, loaded := r.plans.LoadOrCompute(key, func() (planEntry, bool) {
		plan, err := buildPlan(writer, reader)
		return planEntry{plan: plan, err: err}, false
	})
	if !loaded && r.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []slog.Attr{
			slog.String("writer", writer.TypeName()),
			slog.String("reader", reader.TypeName()),
		}
		if entry.err != nil {
			attrs = append(attrs, slog.Any("err", entry.err))
		} else {
			attrs = append(attrs, slog.Bool("identity", entry.plan.IsIdentity()))
		}
		r.logger.LogAttrs(context.Background(), slog.LevelDebug, "avro: resolution plan built", attrs...)
	}
	return entry.plan, entry.err
}

// Len reports how many schema pairs have been resolved.
func (r *Resolver) Len() int { return r.plans.Size() }

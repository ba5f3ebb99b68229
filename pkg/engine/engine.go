// Package engine runs rule discovery for a session.
//
// A discovery run fans out the signal scanners, merges their candidates,
// applies rule guards, ranks, resolves dependencies and bounds the result to
// the scope's load limit. Results are cached per [Session] and served from
// the cache until an invalidation trigger fires.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/macropower/loadout/pkg/candidate"
	"github.com/macropower/loadout/pkg/expr"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/log"
	"github.com/macropower/loadout/pkg/manifest"
	"github.com/macropower/loadout/pkg/metrics"
	"github.com/macropower/loadout/pkg/registry"
	"github.com/macropower/loadout/pkg/resolve"
	"github.com/macropower/loadout/pkg/rule"
	"github.com/macropower/loadout/pkg/scan"
	"github.com/macropower/loadout/pkg/session"
)

var ErrNilRegistry = errors.New("registry is nil")

type (
	// Session is a discovery session cache.
	Session = session.Session[*Result]
	// Store holds sessions keyed by [session.Key].
	Store = session.Store[*Result]
)

// NewSession creates an empty [Session].
func NewSession(key session.Key) *Session {
	return session.New[*Result](key)
}

// NewStore creates an empty [Store].
func NewStore() *Store {
	return session.NewStore[*Result]()
}

// Result is the resolved rule list of one discovery run.
type Result struct {
	GeneratedAt time.Time                   `json:"generatedAt" yaml:"generatedAt"`
	Warning     *limit.LimitExceededWarning `json:"warning,omitempty" yaml:"warning,omitempty"`
	Scope       limit.Scope                 `json:"scope" yaml:"scope"`
	Signature   string                      `json:"signature" yaml:"signature"`
	Rules       []*resolve.Entry            `json:"rules" yaml:"rules"`
	Dropped     []rule.ID                   `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	ScanErrors  []*scan.SourceScanError     `json:"scanErrors,omitempty" yaml:"scanErrors,omitempty"`
	Cached      bool                        `json:"cached" yaml:"cached"`
}

// Clone returns a deep copy of r. Results handed to callers are clones, so
// changing them never touches a session's cached value.
func (r *Result) Clone() *Result {
	out := *r

	if r.Warning != nil {
		w := *r.Warning
		out.Warning = &w
	}

	out.Rules = make([]*resolve.Entry, 0, len(r.Rules))
	for _, e := range r.Rules {
		c := *e
		c.Sources = slices.Clone(e.Sources)
		out.Rules = append(out.Rules, &c)
	}

	out.Dropped = slices.Clone(r.Dropped)

	out.ScanErrors = nil
	for _, se := range r.ScanErrors {
		c := *se
		out.ScanErrors = append(out.ScanErrors, &c)
	}

	return &out
}

// IDs returns the ids of the selected rules in order.
func (r *Result) IDs() []rule.ID {
	ids := make([]rule.ID, 0, len(r.Rules))
	for _, e := range r.Rules {
		ids = append(ids, e.ID)
	}

	return ids
}

// Weights are the default weights of each signal tier.
type Weights struct {
	FileType int `json:"fileType,omitempty" jsonschema:"title=File Type Weight,minimum=0"`
	Manifest int `json:"manifest,omitempty" jsonschema:"title=Manifest Weight,minimum=0"`
	Keyword  int `json:"keyword,omitempty" jsonschema:"title=Keyword Weight,minimum=0"`
}

// DefaultWeights returns the default tier weights.
func DefaultWeights() Weights {
	return Weights{
		FileType: scan.DefaultFileTypeWeight,
		Manifest: scan.DefaultManifestWeight,
		Keyword:  scan.DefaultKeywordWeight,
	}
}

// Engine runs discovery against an immutable [registry.Registry].
type Engine struct {
	reg          *registry.Registry
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	now          func() time.Time
	limits       limit.Limits
	scanners     []scan.Scanner
	resolverOpts []resolve.ResolverOpt
	resolver     *resolve.Resolver
	weights      Weights
}

// Opt configures an [Engine].
type Opt func(*Engine)

// WithWeights sets the default tier weights used by the built-in scanners.
func WithWeights(w Weights) Opt {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithOptionalThreshold sets the score an optional dependency must exceed.
func WithOptionalThreshold(n int) Opt {
	return func(e *Engine) {
		e.resolverOpts = append(e.resolverOpts, resolve.WithOptionalThreshold(n))
	}
}

// WithMaxDepth sets the maximum depth of optional dependencies.
func WithMaxDepth(n int) Opt {
	return func(e *Engine) {
		e.resolverOpts = append(e.resolverOpts, resolve.WithMaxDepth(n))
	}
}

// WithLimits sets the load limit per scope.
func WithLimits(l limit.Limits) Opt {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithScanners replaces the built-in scanners.
func WithScanners(scanners ...scan.Scanner) Opt {
	return func(e *Engine) {
		e.scanners = scanners
	}
}

// WithMetrics records runs in m.
func WithMetrics(m *metrics.Metrics) Opt {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the function used to timestamp results.
func WithClock(now func() time.Time) Opt {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an [Engine] for reg.
func New(reg *registry.Registry, opts ...Opt) (*Engine, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	e := &Engine{
		reg:     reg,
		weights: DefaultWeights(),
		limits:  limit.DefaultLimits(),
		tracer:  otel.Tracer("engine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, scope := range limit.AllScopes {
		if _, err := e.limits.For(scope); err != nil {
			return nil, fmt.Errorf("limits: %w", err)
		}
	}

	if e.scanners == nil {
		e.scanners = []scan.Scanner{
			scan.NewFileTypeScanner(reg, scan.WithWeight(e.weights.FileType)),
			scan.NewManifestScanner(reg, scan.WithWeight(e.weights.Manifest)),
			scan.NewKeywordScanner(reg, scan.WithWeight(e.weights.Keyword)),
		}
	}

	e.resolver = resolve.NewResolver(reg.Graph(), e.resolverOpts...)

	return e, nil
}

// MustNew creates a new [Engine] and panics if there's an error.
func MustNew(reg *registry.Registry, opts ...Opt) *Engine {
	e, err := New(reg, opts...)
	if err != nil {
		panic(err)
	}

	return e
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Limits returns the engine's load limits.
func (e *Engine) Limits() limit.Limits {
	return e.limits
}

// Discover returns the rules to load for in at scope. A valid cached result
// in sess is returned without running the scanners; otherwise the pipeline
// runs and its result is committed to sess.
func (e *Engine) Discover(ctx context.Context, sess *Session, in *scan.Input, scope limit.Scope) (*Result, error) {
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "discover", trace.WithAttributes(
		attribute.String("scope", string(scope)),
		attribute.String("session", string(sess.Key())),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	res, cached, err := e.discover(ctx, sess, in, scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveDiscovery(string(scope), metrics.ResultError, time.Since(start))

		return nil, err
	}

	result := metrics.ResultMiss
	if cached {
		result = metrics.ResultHit
	}

	span.SetAttributes(
		attribute.Bool("cached", cached),
		attribute.Int("rules", len(res.Rules)),
	)
	e.metrics.ObserveDiscovery(string(scope), result, time.Since(start))

	logger.DebugContext(ctx, "discovery complete",
		slog.String("scope", string(scope)),
		slog.Bool("cached", cached),
		slog.Int("rules", len(res.Rules)),
		slog.Duration("duration", time.Since(start)),
	)

	return res, nil
}

// Invalidate discards the cached result of sess.
func (e *Engine) Invalidate(ctx context.Context, sess *Session) {
	e.invalidate(ctx, sess, session.TriggerRescan)
}

func (e *Engine) invalidate(ctx context.Context, sess *Session, reason session.Trigger) {
	sess.InvalidateContext(ctx, reason)
	e.metrics.IncInvalidation(string(reason))
}

func (e *Engine) discover(ctx context.Context, sess *Session, in *scan.Input, scope limit.Scope) (*Result, bool, error) {
	n, err := e.limits.For(scope)
	if err != nil {
		return nil, false, err
	}

	signature := session.Signature(in.Manifests)
	reqContext := string(scope) + "\x00" + in.Request
	suffixes := in.Suffixes()

	if entry, ok := sess.Get(); ok {
		trigger := sess.Check(signature, reqContext, suffixes)
		if trigger == session.TriggerNone {
			res := entry.Value.Clone()
			res.Cached = true

			return res, true, nil
		}

		e.invalidate(ctx, sess, trigger)
	}

	res, err := e.run(ctx, in, n)
	if err != nil {
		return nil, false, err
	}

	res.Scope = scope
	res.Signature = signature
	res.GeneratedAt = e.now()

	sess.Put(&session.Entry[*Result]{
		Timestamp: res.GeneratedAt,
		Value:     res,
		Signature: signature,
		Context:   reqContext,
		Suffixes:  suffixes,
	})

	return res.Clone(), false, nil
}

func (e *Engine) run(ctx context.Context, in *scan.Input, n int) (*Result, error) {
	in.Prepare()

	sets, scanErrs, err := e.scan(ctx, in)
	if err != nil {
		return nil, err
	}

	merged := candidate.Merge(sets...)
	e.applyGuards(ctx, merged, in)

	_, span := e.tracer.Start(ctx, "resolve")
	entries, err := e.resolver.Resolve(merged.Ranked())
	span.SetAttributes(attribute.Int("entries", len(entries)))
	span.End()

	if err != nil {
		return nil, fmt.Errorf("resolve dependencies: %w", err)
	}

	_, span = e.tracer.Start(ctx, "limit", trace.WithAttributes(attribute.Int("limit", n)))
	sel := limit.Select(entries, n)
	span.End()

	if sel.Warning != nil {
		e.metrics.IncLimitExceeded()
		log.WithContext(ctx).WarnContext(ctx, "required rules exceed load limit",
			slog.Int("required", sel.Warning.Required),
			slog.Int("limit", sel.Warning.Limit),
			slog.Int("dropped", sel.Warning.Dropped),
		)
	}

	e.metrics.ObserveSelected(len(sel.Entries))

	rules := sel.Entries
	if rules == nil {
		rules = []*resolve.Entry{}
	}

	return &Result{
		Rules:      rules,
		Dropped:    sel.Dropped,
		Warning:    sel.Warning,
		ScanErrors: scanErrs,
	}, nil
}

func (e *Engine) scan(ctx context.Context, in *scan.Input) ([]candidate.Set, []*scan.SourceScanError, error) {
	sets := make([]candidate.Set, len(e.scanners))
	errs := make([][]*scan.SourceScanError, len(e.scanners))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.scanners {
		g.Go(func() error {
			sctx, span := e.tracer.Start(gctx, "scan/"+s.Source().String())
			defer span.End()

			sets[i], errs[i] = s.Scan(sctx, in)

			span.SetAttributes(
				attribute.Int("candidates", len(sets[i])),
				attribute.Int("errors", len(errs[i])),
			)

			return sctx.Err()
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}

	logger := log.WithContext(ctx)

	var scanErrs []*scan.SourceScanError
	for _, list := range errs {
		for _, se := range list {
			e.metrics.IncScanError(se.Source.String())
			logger.WarnContext(ctx, "scanner skipped item",
				slog.String("source", se.Source.String()),
				slog.String("item", se.Item),
				slog.Any("err", se.Err),
			)
		}

		scanErrs = append(scanErrs, list...)
	}

	return sets, scanErrs, nil
}

// applyGuards removes candidates whose rule guard does not evaluate to true.
func (e *Engine) applyGuards(ctx context.Context, set candidate.Set, in *scan.Input) {
	var vars map[string]any

	for id := range set {
		r, ok := e.reg.Get(id)
		if !ok {
			// Scanners outside the registry cannot be guarded.
			continue
		}
		if !r.HasGuard() {
			continue
		}

		if vars == nil {
			vars = map[string]any{
				expr.VarFiles:        in.Files(),
				expr.VarDependencies: manifest.DependencyMap(in.Declarations()),
				expr.VarRequest:      rule.Fold(in.Request),
			}
		}

		applies, err := r.Applies(vars)
		if err != nil {
			log.WithContext(ctx).WarnContext(ctx, "rule guard failed",
				slog.String("rule", string(id)),
				slog.Any("err", err),
			)
		}

		if !applies {
			delete(set, id)
		}
	}
}

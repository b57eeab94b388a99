// Package corr provides the correlation context: a single trace
// identifier assigned at the earliest entry point of a logical operation
// and propagated across every downstream hop.
package corr

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/agentmesh/core/internal/meshtypes"
)

type traceKey struct{}
type parentKey struct{}

// NewTraceID returns 128 bits of CSPRNG output rendered as 32 lowercase hex
// characters.
func NewTraceID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("corr: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// WithTraceID attaches traceID to ctx, shadowing any ambient trace. The
// returned context is independent of ctx's siblings: concurrent derivations
// of the same parent never observe each other's trace.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the ambient trace id, or "" if none is set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// ParentID returns the trace id this context's trace was nested under, or
// "" if it has none.
func ParentID(ctx context.Context) string {
	if v, ok := ctx.Value(parentKey{}).(string); ok {
		return v
	}
	return ""
}

// RunWith executes fn in a context that causes TraceID to return traceID.
// The previous ambient id (if any) becomes the parent and is restored to
// the caller's context on return; it is never mutated in place, so nested
// invocations shadow the parent without leaking across concurrent
// callers.
func RunWith(ctx context.Context, traceID string, fn func(context.Context)) {
	child := ctx
	if parent := TraceID(ctx); parent != "" && parent != traceID {
		child = context.WithValue(child, parentKey{}, parent)
	}
	child = WithTraceID(child, traceID)
	fn(child)
}

// CreateEventContext derives a correlation context for a new logical
// operation originating from source. If existingID is non-empty it is
// used; otherwise the ambient trace on ctx is reused; otherwise a fresh id
// is generated. The returned context carries the chosen trace id and,
// when it differs from the prior ambient id, that prior id as parent.
func CreateEventContext(ctx context.Context, source meshtypes.EventSource, existingID string) context.Context {
	prior := TraceID(ctx)

	traceID := existingID
	if traceID == "" {
		traceID = prior
	}
	if traceID == "" {
		traceID = NewTraceID()
	}

	next := WithTraceID(ctx, traceID)
	if prior != "" && prior != traceID {
		next = context.WithValue(next, parentKey{}, prior)
	}
	return context.WithValue(next, sourceKey{}, source)
}

type sourceKey struct{}

// Source returns the EventSource recorded by CreateEventContext, or "" if
// none was set on ctx.
func Source(ctx context.Context) meshtypes.EventSource {
	if v, ok := ctx.Value(sourceKey{}).(meshtypes.EventSource); ok {
		return v
	}
	return ""
}

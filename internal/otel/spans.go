package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for the core's spans, mirroring corr's
// correlation-context fields so a trace and its log lines carry the same
// identifiers.
var (
	AttrAgentID      = attribute.Key("agentmesh.agent.id")
	AttrToAgent      = attribute.Key("agentmesh.to_agent")
	AttrRoute        = attribute.Key("agentmesh.route")
	AttrSessionID    = attribute.Key("agentmesh.session.id")
	AttrTraceID      = attribute.Key("agentmesh.trace.id")
	AttrSource       = attribute.Key("agentmesh.source")
	AttrChannelID    = attribute.Key("agentmesh.channel.id")
	AttrRegistration = attribute.Key("agentmesh.registration.id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request (gateway ingress).
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call (peer channel send,
// bus transport, directory lookup).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

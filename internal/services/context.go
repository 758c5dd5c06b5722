package services

import "context"

type contextKey string

const (
	hospitalKey  contextKey = "hospital"
	stageKey     contextKey = "stage"
	flowKey      contextKey = "flow"
	requestIDKey contextKey = "request_id"
)

// WithHospital annotates context with the hospital type being processed.
func WithHospital(ctx context.Context, hospital string) context.Context {
	if hospital == "" {
		return ctx
	}
	return context.WithValue(ctx, hospitalKey, hospital)
}

// HospitalFromContext returns the hospital type if present.
func HospitalFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(hospitalKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the extraction stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithFlow annotates context with the running flow name.
func WithFlow(ctx context.Context, flow string) context.Context {
	if flow == "" {
		return ctx
	}
	return context.WithValue(ctx, flowKey, flow)
}

// FlowFromContext returns the flow name if present.
func FlowFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(flowKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

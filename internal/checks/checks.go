// Package checks wraps the two failure policies used across the service.
//
// Soft is for checks that only read history: an infrastructure failure is
// logged and the check passes, so a broken lookup never blocks an agent.
// Hard is for operations that write a state transition: the error is
// recorded on the active span and returned to the caller.
package checks

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Soft runs fn and returns fallback if it fails.
func Soft[T any](ctx context.Context, logger *slog.Logger, name string, fallback T, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("check."+name+".fail_open", true))
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "soft check failed open", "check", name, "error", err)
		return fallback
	}
	return v
}

// Hard runs fn and propagates its error wrapped with the operation name.
func Hard[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		var zero T
		return zero, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// HardExec is Hard for operations without a result.
func HardExec(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := Hard(ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

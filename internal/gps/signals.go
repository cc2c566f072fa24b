package gps

import "context"

// PlatformSignals reports device integrity facts that a position source
// cannot: whether developer options are on and whether the OS is rooted or
// jailbroken. Real implementations wrap a platform attestation API.
type PlatformSignals interface {
	DeveloperMode(ctx context.Context, agentID string) (bool, error)
	Rooted(ctx context.Context, agentID string) (bool, error)
}

// NoSignals is the placeholder used when no attestation source is wired.
// It always reports a clean device; it is not detection.
type NoSignals struct{}

// DeveloperMode always reports false
func (NoSignals) DeveloperMode(context.Context, string) (bool, error) { return false, nil }

// Rooted always reports false
func (NoSignals) Rooted(context.Context, string) (bool, error) { return false, nil }

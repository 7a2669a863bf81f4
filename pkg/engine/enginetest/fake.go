// Package enginetest provides a function-backed Containerizer double for
// orchestrator tests.
package enginetest

import (
	"context"

	"github.com/kilnbuild/kiln/pkg/engine"
)

// Fake records every request and replays a canned result or error.
type Fake struct {
	Result   *engine.Result
	Err      error
	Requests []*engine.Request

	// ContainerizeFunc, when set, overrides the canned behavior.
	ContainerizeFunc func(ctx context.Context, req *engine.Request) (*engine.Result, error)
}

var _ engine.Containerizer = (*Fake)(nil)

func (f *Fake) Containerize(ctx context.Context, req *engine.Request) (*engine.Result, error) {
	f.Requests = append(f.Requests, req)
	if f.ContainerizeFunc != nil {
		return f.ContainerizeFunc(ctx, req)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

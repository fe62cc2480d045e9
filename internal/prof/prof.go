// Package prof starts the pyroscope push agent for continuous
// profiling.
package prof

import (
	"context"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/chunkd/internal/log"
	"github.com/keithlinneman/chunkd/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	AuthToken     string
	TenantID      string
	Tags          map[string]string

	// MutexFraction and BlockRate feed the runtime profilers behind
	// the mutex and block profile types. Zero leaves a rate untouched.
	MutexFraction int
	BlockRate     int
}

// Start boots the pyroscope agent. The returned stop func is never
// nil, so callers can defer it before checking the error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	stopNothing := func() {}

	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return stopNothing, nil
	}
	if opts.ServerAddress == "" {
		err := xerrors.New("pyroscope enabled without a server address")
		L.Error(ctx, err, "pyroscope options")
		return stopNothing, err
	}

	if opts.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(opts.MutexFraction)
	}
	if opts.BlockRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockRate)
	}

	profiler, err := pyroscope.Start(agentConfig(opts))
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
		return stopNothing, err
	}

	L.Info(ctx, "pyroscope started",
		"server_address", opts.ServerAddress,
		"app_name", opts.AppName,
	)

	return func() {
		profiler.Stop()
		L.Info(context.Background(), "pyroscope stopped",
			"server_address", opts.ServerAddress,
			"app_name", opts.AppName,
		)
	}, nil
}

// agentConfig lists every profile type the agent ships. Mutex and
// block profiles only carry data once the runtime rates are set.
func agentConfig(opts Options) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: opts.AppName,
		ServerAddress:   opts.ServerAddress,
		AuthToken:       opts.AuthToken,
		TenantID:        opts.TenantID,
		Tags:            opts.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	}
}

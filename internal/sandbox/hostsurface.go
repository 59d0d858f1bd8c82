package sandbox

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// buildHostModule wires the "host" module a guest links against: every
// exported function closes over inv, the per-invocation state for this one
// call. A fresh host module instance is built for every invocation (see
// engine.go), so none of these closures are shared across calls.
func buildHostModule(rt wazero.Runtime, inv *invocation, http *httpClient, exec *execRunner) (wazero.HostModuleBuilder, error) {
	builder := rt.NewHostModuleBuilder("host")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
			line, err := readGuestString(mod, ptr, length)
			if err != nil {
				return
			}
			inv.log(line)
		}).
		Export("log")

	builder.NewFunctionBuilder().
		WithFunc(func(context.Context, api.Module) uint64 {
			return uint64(time.Now().UnixMilli())
		}).
		Export("now_millis")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
			name, err := readGuestString(mod, ptr, length)
			if err != nil {
				return mustPacked(ctx, mod, errorEnvelope(err))
			}
			exists := inv.secretExists(name)
			packed, err := writeGuestPacked(ctx, mod, secretExistsEnvelope(exists))
			if err != nil {
				return 0
			}
			return packed
		}).
		Export("secret_exists")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
			reqJSON, err := readGuestString(mod, ptr, length)
			if err != nil {
				return mustPacked(ctx, mod, errorEnvelope(err))
			}
			result := http.do(ctx, inv, reqJSON)
			packed, err := writeGuestPacked(ctx, mod, result)
			if err != nil {
				return 0
			}
			return packed
		}).
		Export("http_request")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
			reqJSON, err := readGuestString(mod, ptr, length)
			if err != nil {
				return mustPacked(ctx, mod, errorEnvelope(err))
			}
			result := exec.run(ctx, inv, reqJSON)
			packed, err := writeGuestPacked(ctx, mod, result)
			if err != nil {
				return 0
			}
			return packed
		}).
		Export("exec_command")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
			reqJSON, err := readGuestString(mod, ptr, length)
			if err != nil {
				return mustPacked(ctx, mod, errorEnvelope(err))
			}
			result := toolInvoke(ctx, inv, reqJSON)
			packed, err := writeGuestPacked(ctx, mod, result)
			if err != nil {
				return 0
			}
			return packed
		}).
		Export("tool_invoke")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint64 {
			reqJSON, err := readGuestString(mod, ptr, length)
			if err != nil {
				return mustPacked(ctx, mod, errorEnvelope(err))
			}
			result := workspaceRead(ctx, inv, reqJSON)
			packed, err := writeGuestPacked(ctx, mod, result)
			if err != nil {
				return 0
			}
			return packed
		}).
		Export("workspace_read")

	return builder, nil
}

func mustPacked(ctx context.Context, mod api.Module, s string) uint64 {
	packed, err := writeGuestPacked(ctx, mod, s)
	if err != nil {
		return 0
	}
	return packed
}

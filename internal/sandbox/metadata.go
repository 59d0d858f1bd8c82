package sandbox

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
)

// metadataTimeout is the generous budget given to a one-shot metadata
// instantiation at discovery time; unlike a real invocation this never runs
// under a tool's configured (possibly much tighter) limits.
const metadataTimeout = 5 * time.Second

// InstantiateMetadata loads wasmBytes under its own short-lived runtime and
// calls description() and schema(), for use at discovery time before any
// capability policy or resource limits have been decided for the tool. Any
// gated host call the guest attempts during this phase fails closed. A
// description() or schema() call that fails yields an empty string, which
// discovery then replaces with its fallback.
func InstantiateMetadata(ctx context.Context, cache wazero.CompilationCache, wasmBytes []byte) (description, schemaJSON string, err error) {
	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithCompilationCache(cache)
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	defer rt.Close(ctx)

	if err := buildMetadataHostModule(ctx, rt); err != nil {
		return "", "", instantiationError(err.Error())
	}

	deadline, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	mod, err := rt.InstantiateWithConfig(deadline, wasmBytes, wazero.NewModuleConfig().WithName("metadata"))
	if err != nil {
		return "", "", instantiationError(err.Error())
	}
	defer mod.Close(ctx)

	description, err = callPackedString(deadline, mod, "description")
	if err != nil {
		description = ""
	}
	schemaJSON, err = callPackedString(deadline, mod, "schema")
	if err != nil {
		schemaJSON = ""
	}
	return description, schemaJSON, nil
}

// buildMetadataHostModule binds a "host" module stub for metadata
// instantiation: log is a no-op, now_millis reports the clock, and
// secret_exists, http_request, exec_command and tool_invoke return 0, since
// no capability policy exists yet to gate them.
func buildMetadataHostModule(ctx context.Context, rt wazero.Runtime) error {
	builder := rt.NewHostModuleBuilder("host")

	deny := func(context.Context, uint32, uint32) uint64 { return 0 }

	builder.NewFunctionBuilder().WithFunc(func(context.Context, uint32, uint32) {}).Export("log")
	builder.NewFunctionBuilder().WithFunc(func(context.Context) uint64 { return uint64(time.Now().UnixMilli()) }).Export("now_millis")
	builder.NewFunctionBuilder().WithFunc(deny).Export("secret_exists")
	builder.NewFunctionBuilder().WithFunc(deny).Export("http_request")
	builder.NewFunctionBuilder().WithFunc(deny).Export("exec_command")
	builder.NewFunctionBuilder().WithFunc(deny).Export("tool_invoke")

	_, err := builder.Instantiate(ctx)
	return err
}

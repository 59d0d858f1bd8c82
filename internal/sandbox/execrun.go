package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oriys/lemonhost/internal/capability"
	"github.com/oriys/lemonhost/internal/execguard"
	"github.com/oriys/lemonhost/internal/metrics"
	"github.com/oriys/lemonhost/internal/secret"
)

type execRequestPayload struct {
	Program     string   `json:"program"`
	Args        []string `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Credential  string   `json:"credential,omitempty"`
	TimeoutSecs int      `json:"timeout_secs,omitempty"`
}

type execResponsePayload struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

// execRunner runs a capability-gated subprocess on behalf of a guest,
// enforcing the upgraded (actually-enforced) timeout described by REDESIGN
// FLAG R1.
type execRunner struct{}

func newExecRunner() *execRunner { return &execRunner{} }

// run implements the §4.3 exec_command host call.
func (r *execRunner) run(ctx context.Context, inv *invocation, reqJSON string) string {
	start := time.Now()
	out := r.runUnmetered(ctx, inv, reqJSON)
	metrics.Global().RecordHostCall("exec_command", float64(time.Since(start).Milliseconds()), strings.Contains(out, `"ok":true`))
	return out
}

func (r *execRunner) runUnmetered(ctx context.Context, inv *invocation, reqJSON string) string {
	var req execRequestPayload
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return errorEnvelopeString("invalid exec_command payload: " + err.Error())
	}

	decision := inv.policy.ExecAllowed(req.Program, req.Args)
	if !decision.Allowed {
		return errorEnvelopeString(decision.Reason)
	}
	if err := inv.checkAndIncrementExec(); err != nil {
		return errorEnvelopeString(err.Error())
	}

	args, err := resolveArgSecrets(inv, req.Args)
	if err != nil {
		return errorEnvelopeString(fmt.Sprintf("resolve args secrets: %s", err.Error()))
	}
	envPairs, err := resolveEnvSecrets(inv, req.Env)
	if err != nil {
		return errorEnvelopeString(fmt.Sprintf("resolve env secrets: %s", err.Error()))
	}

	args, envPairs, err = applyExecCredential(inv, req.Credential, args, envPairs)
	if err != nil {
		return errorEnvelopeString(err.Error())
	}

	timeout := execTimeout(inv.policy, req.TimeoutSecs)
	result, err := execguard.Run(ctx, req.Program, args, mergedEnv(envPairs), timeout)
	if err != nil {
		return errorEnvelopeString("exec failed: " + err.Error())
	}

	secrets := inv.secretsSnapshot()
	return okEnvelope(execResponsePayload{
		Stdout:   secret.Sanitize(result.Stdout, secrets),
		Stderr:   secret.Sanitize(result.Stderr, secrets),
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
	})
}

func resolveArgSecrets(inv *invocation, args []string) ([]string, error) {
	resolved := make([]string, len(args))
	for i, a := range args {
		value, _, err := secret.ResolvePlaceholders(a, inv.resolveSecret)
		if err != nil {
			return nil, err
		}
		resolved[i] = value
	}
	return resolved, nil
}

func resolveEnvSecrets(inv *invocation, env map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(env))
	for k, v := range env {
		value, _, err := secret.ResolvePlaceholders(v, inv.resolveSecret)
		if err != nil {
			return nil, err
		}
		resolved[k] = value
	}
	return resolved, nil
}

func applyExecCredential(inv *invocation, credential string, args []string, env map[string]string) ([]string, map[string]string, error) {
	if credential == "" {
		return args, env, nil
	}
	if inv.policy.Exec == nil {
		return nil, nil, fmt.Errorf("exec capability not granted")
	}
	mapping, ok := inv.policy.Exec.Credentials[credential]
	if !ok {
		return nil, nil, fmt.Errorf("credential %q not configured for this tool", credential)
	}
	value, err := inv.resolveSecret(mapping.SecretName)
	if err != nil {
		return nil, nil, err
	}

	switch mapping.Injection.Type {
	case capability.ExecInjectArg:
		args = append(append([]string{}, args...), mapping.Injection.Flag, value)
		return args, env, nil
	case capability.ExecInjectEnv:
		next := make(map[string]string, len(env)+1)
		for k, v := range env {
			next[k] = v
		}
		next[mapping.Injection.Var] = value
		return args, next, nil
	case capability.ExecInjectFile:
		path, werr := writeCredentialFile(mapping.Injection.PathTemplate, value)
		if werr != nil {
			return nil, nil, werr
		}
		args = append(append([]string{}, args...), path)
		return args, env, nil
	default:
		return nil, nil, fmt.Errorf("unknown exec credential injection type %q", mapping.Injection.Type)
	}
}

// writeCredentialFile materializes value at pathTemplate if one is given
// (the injection's advertised path a guest expects to find its credential
// at), or a fresh temp file otherwise.
func writeCredentialFile(pathTemplate, value string) (string, error) {
	if pathTemplate == "" {
		f, err := os.CreateTemp("", "lemonhost-cred-*")
		if err != nil {
			return "", fmt.Errorf("create credential file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(value); err != nil {
			return "", fmt.Errorf("write credential file: %w", err)
		}
		return f.Name(), nil
	}
	if err := os.WriteFile(pathTemplate, []byte(value), 0o600); err != nil {
		return "", fmt.Errorf("write credential file %s: %w", pathTemplate, err)
	}
	return pathTemplate, nil
}

func mergedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	base := os.Environ()
	out := make([]string, 0, len(base)+len(env))
	out = append(out, base...)
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func execTimeout(policy *capability.Policy, requested int) time.Duration {
	if requested > 0 {
		return time.Duration(requested) * time.Second
	}
	return time.Duration(policy.ExecTimeoutSecs()) * time.Second
}

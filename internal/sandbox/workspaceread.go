package sandbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oriys/lemonhost/internal/metrics"
)

type workspaceReadRequest struct {
	Path string `json:"path"`
}

type workspaceReadResponse struct {
	Content string `json:"content"`
	Size    int    `json:"size"`
}

const maxWorkspaceReadBytes = 4 << 20

// workspaceRead implements the workspace_read host call: a guest may read a
// file under its tool's workspace root if the capability policy's
// allowed-prefix list admits the relative path. The policy check in
// WorkspaceReadAllowed is purely structural; containment is re-verified here
// after resolving symlinks on both the root and the joined path, so neither a
// ".." segment nor a symlink pointing outside the root can escape it. A file
// that is missing or unreadable yields an ok envelope with a null result.
func workspaceRead(ctx context.Context, inv *invocation, reqJSON string) string {
	start := time.Now()
	out := workspaceReadUnmetered(inv, reqJSON)
	metrics.Global().RecordHostCall("workspace_read", float64(time.Since(start).Milliseconds()), strings.Contains(out, `"ok":true`))
	return out
}

func workspaceReadUnmetered(inv *invocation, reqJSON string) string {
	var req workspaceReadRequest
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return errorEnvelopeString("invalid workspace_read request: " + err.Error())
	}

	if !inv.policy.WorkspaceReadAllowed(req.Path) {
		return errorEnvelopeString("path not permitted by capability policy: " + req.Path)
	}
	if inv.workspaceRoot == "" {
		return errorEnvelopeString("workspace_read capability not wired")
	}

	root, err := filepath.Abs(inv.workspaceRoot)
	if err != nil {
		return errorEnvelopeString("resolve workspace root: " + err.Error())
	}
	if realRoot, err := filepath.EvalSymlinks(root); err == nil {
		root = realRoot
	}
	full, err := filepath.EvalSymlinks(filepath.Join(root, req.Path))
	if err != nil {
		return okEnvelope(nil)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errorEnvelopeString("path escapes workspace root: " + req.Path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return okEnvelope(nil)
	}
	if len(data) > maxWorkspaceReadBytes {
		return errorEnvelopeString("file exceeds workspace_read size limit")
	}

	return okEnvelope(workspaceReadResponse{Content: string(data), Size: len(data)})
}

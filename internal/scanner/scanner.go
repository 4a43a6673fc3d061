package scanner

import (
	"context"
	"os/exec"
	"time"
)

const (
	// probeTimeout bounds the "is this tool installed" check.
	probeTimeout = 10 * time.Second
)

// Scanner is one external analysis tool. Implementations own the invocation
// of their tool and the translation of its native output into Findings,
// including the tool-specific severity vocabulary.
//
// Scan must never fail hard: a missing binary, a timeout, a non-zero exit, or
// unparsable output all resolve to a degraded Result carrying an error string
// so the orchestrator can always proceed.
type Scanner interface {
	Name() string
	Probe(ctx context.Context) bool
	Scan(ctx context.Context, checkoutPath string) Result
}

// Subprocess hooks, swapped out in tests so no real tool is required.
var (
	execLookPath     = exec.LookPath
	runCommandOutput = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
		return cmd.Output()
	}
)

// probeCommand checks that a tool responds to a trivial invocation within the
// probe timeout. Any failure, including a missing binary, reports false.
func probeCommand(ctx context.Context, name string, args ...string) bool {
	path, err := execLookPath(name)
	if err != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err = runCommandOutput(probeCtx, "", path, args...)
	return err == nil
}

// degradedResult builds the uniform shape for a tool that could not produce a
// usable scan.
func degradedResult(tool, reason string, severity Severity) Result {
	return Result{
		Tool:     tool,
		Findings: []Finding{},
		Severity: severity,
		Error:    reason,
	}
}

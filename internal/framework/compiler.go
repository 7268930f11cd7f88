package framework

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CompileRequest is one component compilation.
type CompileRequest struct {
	Path       string
	Source     []byte
	Target     Target
	Hydratable bool
}

// Compiler turns a component source file into JavaScript. The UI framework's
// own compiler does the work; ssrkit only invokes it.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) ([]byte, error)
}

// DefaultCompileTimeout bounds one compiler invocation.
const DefaultCompileTimeout = 30 * time.Second

// CommandCompiler runs an external command per component. The source is
// written to stdin and the compiled module is read from stdout. The command
// receives --filename, --generate=<dom|ssr> and, for browser builds,
// --hydratable.
type CommandCompiler struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCommandCompiler parses a command line such as
// "node ./scripts/svelte-compile.mjs" into a compiler.
func NewCommandCompiler(commandLine string, timeout time.Duration) (*CommandCompiler, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty compiler command")
	}
	for _, f := range fields {
		if strings.ContainsAny(f, ";&|`$<>") {
			return nil, fmt.Errorf("compiler command contains shell metacharacters: %q", f)
		}
	}
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	return &CommandCompiler{command: fields[0], args: fields[1:], timeout: timeout}, nil
}

// Args returns the arguments passed for req.
func (c *CommandCompiler) Args(req CompileRequest) []string {
	args := append([]string(nil), c.args...)
	args = append(args, "--filename="+req.Path, "--generate="+req.Target.String())
	if req.Hydratable {
		args = append(args, "--hydratable")
	}
	return args
}

// Compile runs the command with a per-component timeout.
func (c *CommandCompiler) Compile(ctx context.Context, req CompileRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command, c.Args(req)...)
	cmd.Stdin = bytes.NewReader(req.Source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("compiling %s timed out: %w", req.Path, ctx.Err())
		}
		return nil, fmt.Errorf("compiling %s failed: %w\nOutput: %s", req.Path, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

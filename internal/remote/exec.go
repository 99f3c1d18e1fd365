package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Execute runs one CLI command and classifies its stdout. Calls are
// independent; nothing is queued or retried.
func (g *Gateway) Execute(ctx context.Context, command string, args ...string) (Result, error) {
	cmd := g.command(ctx, command, args...)
	started := time.Now()
	stdout, stderr, runErr := g.runner.Run(cmd)
	result := Result{
		Command:  command,
		Stderr:   strings.TrimSpace(string(stderr)),
		Duration: time.Since(started),
	}
	if result.Stderr != "" {
		g.logger.Warn("workflowy cli wrote to stderr", "command", command, "stderr", result.Stderr)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return result, &CommandError{
				Command: cmd.String(),
				Err:     fmt.Errorf("%w: %w", ErrUnavailable, runErr),
			}
		}
		return result, &CommandError{
			Command: cmd.String(),
			Output:  firstNonEmpty(result.Stderr, strings.TrimSpace(string(stdout))),
			Err:     runErr,
		}
	}

	trimmed := strings.TrimSpace(string(stdout))
	if json.Valid([]byte(trimmed)) {
		result.JSON = json.RawMessage(trimmed)
		return result, nil
	}
	if strings.Contains(trimmed, AuthMarker) {
		result.Text = trimmed
		result.SessionID = ParseSessionID(trimmed)
		return result, nil
	}
	return result, &CommandError{
		Command: cmd.String(),
		Output:  truncate(trimmed, 512),
		Err:     ErrUnparseable,
	}
}

// Go runs Execute on its own goroutine. The channel yields exactly one
// Response and is then closed.
func (g *Gateway) Go(ctx context.Context, command string, args ...string) <-chan Response {
	out := make(chan Response, 1)
	go func() {
		defer close(out)
		result, err := g.Execute(ctx, command, args...)
		out <- Response{Result: result, Err: err}
	}()
	return out
}

func (g *Gateway) command(ctx context.Context, command string, args ...string) *exec.Cmd {
	name, prefix := g.entryPoint()
	full := make([]string, 0, len(prefix)+len(g.cfg.Args)+1+len(args))
	full = append(full, prefix...)
	full = append(full, g.cfg.Args...)
	full = append(full, command)
	full = append(full, args...)

	pathValue := augmentPath(os.Getenv("PATH"), g.cfg.ExtraPath)
	if !strings.ContainsRune(name, filepath.Separator) {
		if resolved, ok := lookPath(name, pathValue); ok {
			name = resolved
		}
	}
	cmd := exec.CommandContext(ctx, name, full...)
	cmd.Env = append(replaceEnv(os.Environ(), "PATH", pathValue), g.cfg.Env...)
	return cmd
}

// entryPoint maps the configured command to the executable and leading
// arguments. npx needs the package name; scripts run under node.
func (g *Gateway) entryPoint() (string, []string) {
	command := g.cfg.Command
	if command == "" {
		return defaultCLIName, nil
	}
	base := filepath.Base(command)
	switch {
	case base == "npx":
		return command, []string{defaultCLIName}
	case isScript(base):
		return g.cfg.Node, []string{command}
	default:
		return command, nil
	}
}

func isScript(base string) bool {
	switch strings.ToLower(filepath.Ext(base)) {
	case ".js", ".mjs", ".cjs":
		return true
	default:
		return false
	}
}

// ParseSessionID returns the alphanumeric run that follows AuthMarker.
func ParseSessionID(output string) string {
	index := strings.Index(output, AuthMarker)
	if index < 0 {
		return ""
	}
	rest := output[index+len(AuthMarker):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	if end < 0 {
		return rest
	}
	return rest[:end]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrUnavailable      = errors.New("workflowy cli is unavailable")
	ErrUnparseable      = errors.New("workflowy cli output is neither json nor an auth confirmation")
	ErrMalformedPayload = errors.New("malformed workflowy payload")
)

// AuthMarker precedes the session id in the plain-text output of auth.
const AuthMarker = "Found sessionid: "

const (
	CommandGetTree        = "getTree"
	CommandCreate         = "createNodeCustom"
	CommandEdit           = "editNode"
	CommandDelete         = "deleteNode"
	CommandComplete       = "completeNode"
	CommandUncomplete     = "uncompleteNode"
	CommandAuth           = "auth"
	defaultCLIName        = "workflowy"
	defaultNodeExecutable = "node"
)

type Config struct {
	// Command is the CLI entry point: an executable, an npx binary or a
	// JavaScript file. Empty means "workflowy" on the augmented PATH.
	Command string
	// Args are prepended to every invocation.
	Args []string
	// Node runs script entry points. Defaults to "node".
	Node string
	// ExtraPath is prepended to PATH for every invocation.
	ExtraPath []string
	Env       []string
}

// Result is a successful CLI invocation. Exactly one of JSON or Text is set.
type Result struct {
	Command   string
	JSON      json.RawMessage
	Text      string
	SessionID string
	Stderr    string
	Duration  time.Duration
}

func (r Result) IsJSON() bool {
	return len(r.JSON) > 0
}

// Response pairs a Result with its error for asynchronous callers.
type Response struct {
	Result Result
	Err    error
}

type Gateway struct {
	cfg    Config
	logger *slog.Logger
	runner commandRunner
}

type commandRunner interface {
	Run(cmd *exec.Cmd) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(cmd *exec.Cmd) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandError describes a failed CLI call. It unwraps to ErrUnavailable,
// ErrUnparseable or the underlying process error.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, e.Output)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func New(cfg Config, logger *slog.Logger) *Gateway {
	return newGateway(cfg, logger, execRunner{})
}

func newGateway(cfg Config, logger *slog.Logger, runner commandRunner) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = execRunner{}
	}
	return &Gateway{
		cfg:    withDefaults(cfg),
		logger: logger,
		runner: runner,
	}
}

func withDefaults(cfg Config) Config {
	cfg.Command = strings.TrimSpace(cfg.Command)
	if strings.TrimSpace(cfg.Node) == "" {
		cfg.Node = defaultNodeExecutable
	}
	if cfg.ExtraPath == nil {
		cfg.ExtraPath = NodeSearchPath()
	}
	args := make([]string, 0, len(cfg.Args))
	for _, arg := range cfg.Args {
		if arg = strings.TrimSpace(arg); arg != "" {
			args = append(args, arg)
		}
	}
	cfg.Args = args
	return cfg
}

// Describe reports how commands will be launched, for status output.
func (g *Gateway) Describe() string {
	name, args := g.entryPoint()
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/oxiglade/cica/internal/logger"
)

// ClaudeConfig configures the Claude CLI backend.
type ClaudeConfig struct {
	// Binary is the CLI executable to spawn (default "claude").
	Binary string

	// WorkingDir is the default working directory for invocations.
	WorkingDir string

	// Model is the default model alias or ID. Empty uses the CLI default.
	Model string

	// Env holds extra environment variables (credentials and the like)
	// appended to the process environment.
	Env []string
}

// ClaudeCLI invokes the Claude Code CLI in non-interactive mode and parses
// its JSON output.
type ClaudeCLI struct {
	cfg    ClaudeConfig
	logger *logger.Logger
}

// NewClaudeCLI creates a Claude CLI backend.
func NewClaudeCLI(cfg ClaudeConfig, log *logger.Logger) *ClaudeCLI {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	return &ClaudeCLI{cfg: cfg, logger: log}
}

// cliResponse is one line of the CLI's JSON output. Only lines with
// type "result" carry the response.
type cliResponse struct {
	Type       string `json:"type"`
	Result     string `json:"result"`
	SessionID  string `json:"session_id"`
	DurationMS int64  `json:"duration_ms"`
	IsError    bool   `json:"is_error"`
}

// Invoke runs the CLI with the prompt and options and returns the parsed
// result. A non-zero exit or output without a result line is an error.
func (c *ClaudeCLI) Invoke(ctx context.Context, prompt string, opts QueryOptions) (Result, error) {
	args := []string{"-p", "--output-format", "json"}

	if opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	if opts.SystemPrompt != "" {
		if opts.ResumeSession == "" {
			// New session: full system prompt
			args = append(args, "--system-prompt", opts.SystemPrompt)
		} else {
			// Resuming: append as reminder
			args = append(args, "--append-system-prompt", opts.SystemPrompt)
		}
	}

	if opts.ResumeSession != "" {
		args = append(args, "--resume", opts.ResumeSession)
	}

	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	args = append(args, prompt)

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	} else if c.cfg.WorkingDir != "" {
		cmd.Dir = c.cfg.WorkingDir
	}
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.cfg.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("invoking backend CLI",
		logger.Field{Key: "binary", Value: c.cfg.Binary},
		logger.Field{Key: "resume", Value: opts.ResumeSession != ""})

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = stdout.String()
		}
		return Result{}, fmt.Errorf("backend CLI failed: %w: %s", err, msg)
	}

	return parseOutput(stdout.Bytes())
}

// parseOutput scans line-wise JSON output for the result line.
func parseOutput(output []byte) (Result, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp cliResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.Type != "result" {
			continue
		}
		if resp.IsError {
			return Result{}, fmt.Errorf("backend returned error: %s", resp.Result)
		}
		return Result{Text: resp.Result, SessionID: resp.SessionID}, nil
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("failed to scan backend output: %w", err)
	}

	return Result{}, fmt.Errorf("no result found in backend output")
}

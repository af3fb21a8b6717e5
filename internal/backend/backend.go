// Package backend defines the narrow interface to the AI backend and its
// CLI-based implementation. The backend is treated as opaque, slow and
// fallible; callers decide whether and how to retry.
package backend

import "context"

// QueryOptions configures a single backend invocation.
type QueryOptions struct {
	// SystemPrompt is passed as the system prompt for a new session, or
	// appended as a reminder when resuming.
	SystemPrompt string

	// ResumeSession resumes an existing session by ID when non-empty.
	ResumeSession string

	// WorkingDir is the working directory for the invocation. Empty means
	// the implementation's default.
	WorkingDir string

	// SkipPermissions disables interactive permission prompts, required
	// for unattended flows like cron jobs.
	SkipPermissions bool

	// Model selects a model alias or full model ID. Empty uses the
	// backend's default.
	Model string
}

// Result is a successful backend response.
type Result struct {
	// Text is the response text.
	Text string

	// SessionID identifies the conversation for later resumption.
	SessionID string
}

// Invoker invokes the AI backend with a prompt and returns its response.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts QueryOptions) (Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string, opts QueryOptions) (Result, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string, opts QueryOptions) (Result, error) {
	return f(ctx, prompt, opts)
}

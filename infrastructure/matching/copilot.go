package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotProvider implements the Provider interface using the GitHub
// Copilot SDK. Useful when the agent runs next to a Copilot CLI.
type CopilotProvider struct {
	client *copilot.Client
	config CopilotConfig
	mu     sync.Mutex
}

// CopilotConfig configures the Copilot provider.
type CopilotConfig struct {
	// Model specifies the Copilot model to use (e.g., "gpt-4.1", "gpt-5").
	Model string

	// Streaming enables incremental response reception.
	Streaming bool

	// Timeout is the request timeout in seconds (default: 120).
	Timeout int

	// CLIPath is the location of the CLI executable.
	// Defaults to "copilot" or the COPILOT_CLI_PATH environment variable.
	CLIPath string

	// CLIUrl is the URL of an existing Copilot CLI server.
	// When set, the client connects to the existing server instead of
	// spawning a new process.
	CLIUrl string

	// Cwd is the working directory for the CLI process.
	Cwd string

	// LogLevel sets logging verbosity (default: "error").
	LogLevel string
}

// NewCopilotProvider creates a new Copilot provider.
func NewCopilotProvider(config CopilotConfig) (*CopilotProvider, error) {
	if config.Model == "" {
		config.Model = "gpt-4.1"
	}
	if config.Timeout == 0 {
		config.Timeout = 120
	}
	if config.LogLevel == "" {
		config.LogLevel = "error"
	}

	clientOpts := &copilot.ClientOptions{
		LogLevel: config.LogLevel,
	}

	if config.CLIPath != "" {
		clientOpts.CLIPath = config.CLIPath
	}
	if config.CLIUrl != "" {
		clientOpts.CLIUrl = config.CLIUrl
	}
	if config.Cwd != "" {
		clientOpts.Cwd = config.Cwd
	}

	client := copilot.NewClient(clientOpts)

	return &CopilotProvider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider name.
func (p *CopilotProvider) Name() string {
	return "copilot"
}

// Start initializes the Copilot client.
func (p *CopilotProvider) Start() error {
	return p.client.Start()
}

// Stop shuts down the Copilot client.
func (p *CopilotProvider) Stop() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client.Stop()
}

// Complete sends a chat completion request and returns the response.
func (p *CopilotProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionConfig := &copilot.SessionConfig{
		Model:     p.getModel(req.Model),
		Streaming: p.config.Streaming,
	}

	session, err := p.client.CreateSession(sessionConfig)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Destroy() }()

	prompt, err := buildCopilotPrompt(req.Messages)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	var content string
	done := make(chan struct{})
	var responseErr error

	unsubscribe := session.On(func(event copilot.SessionEvent) {
		switch event.Type {
		case copilot.AssistantMessage:
			if event.Data.Content != nil {
				content = *event.Data.Content
			}
		case copilot.AssistantMessageDelta:
			if event.Data.DeltaContent != nil {
				content += *event.Data.DeltaContent
			}
		case copilot.SessionIdle:
			close(done)
		case copilot.SessionError:
			if event.Data.Message != nil {
				responseErr = errors.New(*event.Data.Message)
			} else {
				responseErr = errors.New("unknown session error")
			}
			close(done)
		}
	})
	defer unsubscribe()

	_, err = session.Send(copilot.MessageOptions{
		Prompt: prompt,
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("failed to send message: %w", err)
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	select {
	case <-done:
		if responseErr != nil {
			return CompletionResponse{}, responseErr
		}
	case <-time.After(timeout):
		return CompletionResponse{}, errors.New("request timed out")
	case <-ctx.Done():
		_ = session.Abort()
		return CompletionResponse{}, ctx.Err()
	}

	return CompletionResponse{
		Model: p.getModel(req.Model),
		Message: Message{
			Role:    "assistant",
			Content: content,
		},
	}, nil
}

// getModel returns the model to use, with fallback to configured default.
func (p *CopilotProvider) getModel(reqModel string) string {
	if reqModel != "" {
		return reqModel
	}
	return p.config.Model
}

// buildCopilotPrompt converts messages to a single prompt string. The
// Copilot SDK uses a prompt-based interface rather than message arrays.
func buildCopilotPrompt(messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages provided")
	}

	var prompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			// System messages are prepended
			if prompt == "" {
				prompt = "System: " + msg.Content + "\n\n"
			} else {
				prompt = "System: " + msg.Content + "\n\n" + prompt
			}
		case "user":
			prompt += "User: " + msg.Content + "\n\n"
		case "assistant":
			prompt += "Assistant: " + msg.Content + "\n\n"
		}
	}

	return prompt, nil
}

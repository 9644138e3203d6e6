package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/parley/interfaces/api"
)

// chatOptions holds options for the chat command.
type chatOptions struct {
	configPath string
	customerID string
	tags       []string
	message    string
	verbose    bool
	jsonOutput bool
	watch      bool
}

// newChatCmd creates the chat command.
func (a *App) newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Converse with an agent",
		Long: `Start a conversation with the agent defined in the configuration file.

Without a message argument, an interactive session reads customer messages
from stdin until EOF or an interrupt. With one, a single turn is processed
and the reply printed.

Examples:
  # Interactive conversation
  parley chat -c agent.yaml

  # Single turn
  parley chat -c agent.yaml "Where is my order #A100?"

  # Tag the session for shared context variables
  parley chat -c agent.yaml --customer alice --tag vip

  # Show the reply trace after each turn
  parley chat -c agent.yaml --verbose

  # Hot-reload the definition while chatting
  parley chat -c agent.yaml --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.message = args[0]
			}
			return a.chat(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to definition file (required)")
	cmd.Flags().StringVar(&opts.customerID, "customer", "cli", "Customer identifier for the session")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Session tags for shared context variables")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print the reply trace after each turn")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output replies as JSON")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Hot-reload the definition on file changes")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// chat runs the conversation loop.
func (a *App) chat(ctx context.Context, opts *chatOptions) error {
	agent, err := api.FromFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load agent: %w", err)
	}
	defer agent.Close()

	if opts.watch {
		watcher, err := agent.WatchConfig(opts.configPath)
		if err != nil {
			return fmt.Errorf("failed to watch definition: %w", err)
		}
		defer watcher.Close()
	}

	sess, err := agent.StartSession(ctx, opts.customerID, opts.tags...)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	if opts.message != "" {
		return a.turn(ctx, agent, sess.ID, opts.message, opts)
	}

	fmt.Fprintf(a.stdout, "Session %s with %s. Type your message; Ctrl-D ends.\n", sess.ID, agent.Definition().Name)
	scanner := bufio.NewScanner(a.stdin)
	for {
		fmt.Fprint(a.stdout, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if err := a.turn(ctx, agent, sess.ID, input, opts); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(a.stderr, "turn failed: %v\n", err)
		}
	}
	return scanner.Err()
}

// turn processes one customer message and prints the reply.
func (a *App) turn(ctx context.Context, agent *api.Agent, sessionID, input string, opts *chatOptions) error {
	reply, err := agent.ProcessTurn(ctx, sessionID, input)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		out, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, string(out))
		return nil
	}

	fmt.Fprintln(a.stdout, reply.Text)
	if opts.verbose {
		a.printTrace(&reply.Trace)
	}
	return nil
}

// printTrace renders a compact trace summary.
func (a *App) printTrace(trace *api.Trace) {
	fmt.Fprintf(a.stderr, "  mode: %s\n", trace.Mode)
	for _, m := range trace.Matches {
		fmt.Fprintf(a.stderr, "  guideline %s (%.2f): %s\n", m.Guideline.ID, m.Confidence, m.Guideline.Action)
	}
	for _, t := range trace.Tools {
		fmt.Fprintf(a.stderr, "  tool %s: %s\n", t.ToolName, t.Outcome)
	}
	for _, s := range trace.JourneySteps {
		marker := "->"
		if s.Skipped {
			marker = "~>"
		}
		fmt.Fprintf(a.stderr, "  journey %s: %s %s %s\n", s.JourneyID, s.FromState, marker, s.ToState)
	}
	if trace.CannedID != "" {
		fmt.Fprintf(a.stderr, "  canned: %s\n", trace.CannedID)
	}
	for _, d := range trace.Diagnostics {
		fmt.Fprintf(a.stderr, "  diagnostic %s: %s\n", d.Kind, d.Detail)
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/parley/interfaces/api"
)

// inspectOptions holds options for the inspect command.
type inspectOptions struct {
	configPath string
	outputJSON bool
	section    string
}

// newInspectCmd creates the inspect command.
func (a *App) newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect definition details",
		Long: `Inspect and display detailed definition information.

Sections:
  all         Show the whole definition (default)
  guidelines  Show the condition-action rules
  journeys    Show the conversational state machines
  terms       Show the glossary
  canned      Show the pre-approved responses
  variables   Show the context-variable declarations
  tools       Show the declared tools

Examples:
  # Inspect the full definition
  parley inspect -c agent.yaml

  # Inspect a specific section
  parley inspect -c agent.yaml --section journeys

  # Output as JSON
  parley inspect -c agent.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspectConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to definition file (required)")
	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&opts.section, "section", "all", "Section to inspect (all, guidelines, journeys, terms, canned, variables, tools)")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// inspectConfig inspects the definition file.
func (a *App) inspectConfig(opts *inspectOptions) error {
	config, err := api.NewConfigLoader().LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load definition: %w", err)
	}

	if opts.outputJSON {
		return a.inspectJSON(config, opts.section)
	}
	return a.inspectText(config, opts.section)
}

// inspectJSON outputs the selected section as JSON.
func (a *App) inspectJSON(config *api.AgentConfig, section string) error {
	var output any
	switch section {
	case "all":
		output = config
	case "guidelines":
		output = config.Guidelines
	case "journeys":
		output = config.Journeys
	case "terms":
		output = config.Terms
	case "canned":
		output = config.Canned
	case "variables":
		output = config.Variables
	case "tools":
		output = config.Tools
	default:
		return fmt.Errorf("unknown section: %s", section)
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(data))
	return nil
}

// inspectText renders the selected section as text.
func (a *App) inspectText(config *api.AgentConfig, section string) error {
	all := section == "all"

	if all {
		fmt.Fprintf(a.stdout, "%s v%s\n", config.Name, config.Version)
		if config.Description != "" {
			fmt.Fprintf(a.stdout, "%s\n", config.Description)
		}
		fmt.Fprintf(a.stdout, "Mode: %s\n", modeOrDefault(config.Agent.Mode))
	}

	if all || section == "guidelines" {
		fmt.Fprintf(a.stdout, "\nGuidelines (%d):\n", len(config.Guidelines))
		for _, g := range config.Guidelines {
			marker := " "
			if g.Disabled {
				marker = "x"
			}
			fmt.Fprintf(a.stdout, "  [%s] when %q -> %s\n", marker, g.Condition, g.Action)
			if len(g.Tools) > 0 {
				fmt.Fprintf(a.stdout, "      tools: %v\n", g.Tools)
			}
		}
	}

	if all || section == "journeys" {
		fmt.Fprintf(a.stdout, "\nJourneys (%d):\n", len(config.Journeys))
		for _, j := range config.Journeys {
			fmt.Fprintf(a.stdout, "  %s: %s (initial %s)\n", j.ID, j.Title, j.Initial)
			for _, s := range j.States {
				fmt.Fprintf(a.stdout, "    state %s (%s)\n", s.ID, s.Kind)
			}
			for _, t := range j.Transitions {
				if t.Condition == "" {
					fmt.Fprintf(a.stdout, "    %s -> %s\n", t.From, t.To)
				} else {
					fmt.Fprintf(a.stdout, "    %s -> %s when %q\n", t.From, t.To, t.Condition)
				}
			}
		}
	}

	if all || section == "terms" {
		fmt.Fprintf(a.stdout, "\nGlossary (%d):\n", len(config.Terms))
		for _, t := range config.Terms {
			fmt.Fprintf(a.stdout, "  %s: %s\n", t.Name, t.Description)
		}
	}

	if all || section == "canned" {
		fmt.Fprintf(a.stdout, "\nCanned responses (%d):\n", len(config.Canned))
		for _, c := range config.Canned {
			fmt.Fprintf(a.stdout, "  %s: %q\n", c.ID, c.Text)
		}
	}

	if all || section == "variables" {
		fmt.Fprintf(a.stdout, "\nContext variables (%d):\n", len(config.Variables))
		for _, v := range config.Variables {
			fmt.Fprintf(a.stdout, "  %s (%s)\n", v.Name, scopeOrDefault(v.Scope))
		}
	}

	if all || section == "tools" {
		fmt.Fprintf(a.stdout, "\nTools (%d):\n", len(config.Tools))
		for _, t := range config.Tools {
			fmt.Fprintf(a.stdout, "  %s (%s): %s\n", t.Name, t.Handler.Type, t.Description)
		}
	}

	if !all && section != "guidelines" && section != "journeys" && section != "terms" &&
		section != "canned" && section != "variables" && section != "tools" {
		return fmt.Errorf("unknown section: %s", section)
	}
	return nil
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return "fluid"
	}
	return mode
}

func scopeOrDefault(scope string) string {
	if scope == "" {
		return "customer"
	}
	return scope
}

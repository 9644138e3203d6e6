package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/parley/interfaces/api"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configPath string
	strict     bool
	showSchema bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an agent definition file",
		Long: `Validate an agent definition file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name, version)
  - Guideline criticality and scope references
  - Journey state and transition references
  - Tool handler configuration
  - Environment variable references (in strict mode)

Examples:
  # Validate a definition file
  parley validate -c agent.yaml

  # Strict validation (fail on missing env vars)
  parley validate -c agent.yaml --strict

  # Show the JSON schema for definitions
  parley validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showSchema {
				return a.showConfigSchema()
			}
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to definition file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.showSchema, "schema", false, "Show JSON schema for definitions")

	return cmd
}

// validateConfig validates the definition file.
func (a *App) validateConfig(opts *validateOptions) error {
	if opts.configPath == "" {
		return fmt.Errorf("definition file path is required (-c flag)")
	}

	loaderOpts := []api.ConfigLoaderOption{
		api.ConfigWithValidation(true),
	}
	if opts.strict {
		loaderOpts = append(loaderOpts, api.ConfigWithStrictEnv(true))
	}

	loader := api.NewConfigLoaderWithOptions(loaderOpts...)
	config, err := loader.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Conversion catches what file-level validation cannot.
	def, err := config.ToDefinition()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Definition is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", config.Name)
	fmt.Fprintf(a.stdout, "  Version: %s\n", config.Version)
	if config.Description != "" {
		fmt.Fprintf(a.stdout, "  Description: %s\n", config.Description)
	}

	fmt.Fprintf(a.stdout, "\nDefinition summary:\n")
	fmt.Fprintf(a.stdout, "  Mode: %s\n", def.Mode)
	fmt.Fprintf(a.stdout, "  Guidelines: %d\n", len(def.Guidelines))
	fmt.Fprintf(a.stdout, "  Journeys: %d\n", len(def.Journeys))
	for _, j := range def.Journeys {
		fmt.Fprintf(a.stdout, "    - %s (%d states)\n", j.ID, len(j.States))
	}
	fmt.Fprintf(a.stdout, "  Glossary terms: %d\n", len(def.Terms))
	fmt.Fprintf(a.stdout, "  Canned responses: %d\n", len(def.Canned))
	fmt.Fprintf(a.stdout, "  Context variables: %d\n", len(def.Variables))

	if len(config.Tools) > 0 {
		fmt.Fprintf(a.stdout, "  Tools: %d\n", len(config.Tools))
		for _, t := range config.Tools {
			fmt.Fprintf(a.stdout, "    - %s (%s)\n", t.Name, t.Handler.Type)
		}
	}

	if config.Matching.Provider != "" {
		fmt.Fprintf(a.stdout, "  Matching provider: %s\n", config.Matching.Provider)
	}

	return nil
}

// showConfigSchema displays the JSON schema for definitions.
func (a *App) showConfigSchema() error {
	schemaJSON, err := api.ConfigSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(a.stdout, schemaJSON)
	return nil
}

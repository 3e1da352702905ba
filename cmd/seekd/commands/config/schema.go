package config

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode"

	"github.com/invopop/jsonschema"
	"github.com/seekd/seekd/pkg/config"
	"github.com/spf13/cobra"
)

var schemaOutputFile string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for IDE/validation",
	Long: `Generate a JSON schema describing the seekd configuration file.

Point your editor's YAML language server at the generated schema for
completion and inline validation.

Examples:
  # Print schema to stdout
  seekd config schema

  # Write schema to a file
  seekd config schema --output seekd-config.schema.json`,
	RunE: runConfigSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutputFile, "output", "o", "", "Write schema to file instead of stdout")
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		KeyNamer:       snakeCase,
	}
	schema := reflector.Reflect(&config.Config{})
	schema.Title = "seekd configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	data = append(data, '\n')

	if schemaOutputFile != "" {
		if err := os.WriteFile(schemaOutputFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write schema: %w", err)
		}
		fmt.Printf("Schema written to: %s\n", schemaOutputFile)
		return nil
	}
	_, err = os.Stdout.Write(data)
	return err
}

// snakeCase maps Go field names to the snake_case keys the YAML file uses.
func snakeCase(name string) string {
	var out []rune
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && (i+1 == len(name) || !unicode.IsUpper(rune(name[i+1])) || !unicode.IsUpper(rune(name[i-1]))) {
				out = append(out, '_')
			}
			r = unicode.ToLower(r)
		}
		out = append(out, r)
	}
	return string(out)
}

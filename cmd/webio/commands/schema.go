package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/marmos91/webio/pkg/config"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema of the configuration file",
	Long: `Generate a JSON schema describing the configuration file, for editor
completion and validation.

Examples:
  webio schema > config.schema.json
  webio schema --output config.schema.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaOutput == "" {
			return writeSchema(cmd.OutOrStdout())
		}

		f, err := os.Create(schemaOutput)
		if err != nil {
			return fmt.Errorf("create schema file: %w", err)
		}
		if err := writeSchema(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "write the schema to a file instead of stdout")
}

// configSchema reflects the configuration structs, naming properties after
// their configuration keys.
func configSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "webio Configuration"
	schema.Description = "Configuration schema for the webio resource core"
	schema.Version = Version
	return schema
}

func writeSchema(w io.Writer) error {
	data, err := json.MarshalIndent(configSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

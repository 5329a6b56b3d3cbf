package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittofd/pkg/config"
	"github.com/marmos91/dittofd/pkg/script"
)

type schemaTarget struct {
	file        string
	title       string
	description string
	value       any
	fieldTag    string
}

func main() {
	// Schemas are written to the directory given as the first argument
	outputDir := "."
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	targets := []schemaTarget{
		{
			file:        "config.schema.json",
			title:       "DittoFD Configuration",
			description: "Configuration schema for the DittoFD kernel",
			value:       &config.Config{},
			fieldTag:    "mapstructure",
		},
		{
			file:        "script.schema.json",
			title:       "DittoFD Script",
			description: "Schema for syscall scripts run with dittofd --script",
			value:       &script.Script{},
			fieldTag:    "yaml",
		},
	}

	for _, target := range targets {
		if err := writeSchema(outputDir, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func writeSchema(dir string, target schemaTarget) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
		FieldNameTag:              target.fieldTag,
	}

	schema := reflector.Reflect(target.value)
	schema.Title = target.title
	schema.Description = target.description
	schema.Version = "1.0.0"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", target.file, err)
	}

	path := filepath.Join(dir, target.file)
	if err := os.WriteFile(path, schemaJSON, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("JSON schema written to %s\n", path)
	return nil
}

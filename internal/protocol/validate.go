package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// paramSchemas maps command names to their compiled params schema.
// Commands without an entry accept any params object.
var paramSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		panic(fmt.Sprintf("protocol: read embedded schemas: %v", err))
	}

	compiled := make(map[string]*jsonschema.Schema, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		data, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			panic(fmt.Sprintf("protocol: read schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("protocol: add schema %s: %v", name, err))
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("protocol: compile schema %s: %v", name, err))
		}

		// start_recording.schema.json validates START_RECORDING.
		command := strings.ToUpper(strings.TrimSuffix(name, ".schema.json"))
		compiled[command] = schema
	}
	return compiled
}

// ValidateParams checks a command's params against its JSON schema, if
// one is registered. The params map is revalidated as a generic JSON
// value, so handler code can rely on required fields being present and
// correctly typed.
func ValidateParams(command string, params map[string]any) error {
	schema, ok := paramSchemas[command]
	if !ok {
		return nil
	}

	instance := any(params)
	if params == nil {
		instance = map[string]any{}
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid params for %s: %w", command, err)
	}
	return nil
}

package ports

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CleanJSONResponse strips markdown code fences some models wrap
// around JSON output.
func CleanJSONResponse(raw string) string {
	out := strings.TrimSpace(raw)
	if strings.HasPrefix(out, "```json") {
		out = strings.TrimPrefix(out, "```json")
	} else if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}

// ValidateAndDecode checks raw model output against the schema and
// unmarshals it into out. Any violation is permanent: the model broke
// the output contract and an identical retry would break it the same
// way.
func ValidateAndDecode(schema Schema, raw string, out any) error {
	cleaned := CleanJSONResponse(raw)

	compiled, err := compileSchema(schema)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return MarkPermanent(fmt.Errorf("model output is not valid JSON: %w", err))
	}
	if err := compiled.Validate(doc); err != nil {
		return MarkPermanent(fmt.Errorf("model output failed schema %s: %w", schema.Name, err))
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return MarkPermanent(fmt.Errorf("failed to decode model output: %w", err))
	}
	return nil
}

func compileSchema(schema Schema) (*jsonschema.Schema, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema %s: %w", schema.Name, err)
	}

	name := schema.Name
	if name == "" {
		name = "schema"
	}
	url := name + ".json"

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(string(def))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return compiled, nil
}

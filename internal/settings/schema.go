package settings

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce    sync.Once
	schemaErr     error
	filterSchema  *gojsonschema.Schema
	profileSchema *gojsonschema.Schema
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		filterSchema, schemaErr = compileSchema("schemas/filter_settings.schema.json")
		if schemaErr != nil {
			return
		}
		profileSchema, schemaErr = compileSchema("schemas/applicant_profile.schema.json")
	})
	return schemaErr
}

func compileSchema(path string) (*gojsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
	}
	return schema, nil
}

// checkSchema validates a JSON document and returns the violations as
// "field: description" strings.
func checkSchema(schema *gojsonschema.Schema, document string) ([]string, error) {
	result, err := schema.Validate(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return problems, nil
}

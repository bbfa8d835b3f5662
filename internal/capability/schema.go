package capability

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// GenerateSchema builds the JSON schema for an argument struct from its tags.
//
//	type Args struct {
//	    Query string `json:"query" jsonschema:"required,description=PromQL expression"`
//	    Range int    `json:"time_range_minutes,omitempty" jsonschema:"minimum=1,default=5"`
//	}
func GenerateSchema[T any]() (map[string]interface{}, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
	}

	schemaMap, err := schemaToMap(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	result := map[string]interface{}{
		"type":       "object",
		"properties": schemaMap["properties"],
	}
	if required, ok := schemaMap["required"]; ok && required != nil {
		result["required"] = required
	}
	return result, nil
}

// MustGenerateSchema is GenerateSchema for package-level argument types whose
// tags are fixed at compile time.
func MustGenerateSchema[T any]() map[string]interface{} {
	s, err := GenerateSchema[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeArgs copies validated arguments into dst. Fields absent from args
// keep whatever dst already holds, which is how defaults are applied.
func decodeArgs(name string, args map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           dst,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return validationError(name, "build decoder: %v", err)
	}
	if err := dec.Decode(args); err != nil {
		return validationError(name, "%v", err)
	}
	return nil
}

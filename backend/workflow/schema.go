package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/adlens/adlens/backend/models"
	"github.com/xeipuuv/gojsonschema"
)

const analysisSchema = `{
	"type": "object",
	"required": ["creativeId", "imageUrl"],
	"additionalProperties": false,
	"properties": {
		"creativeId":   {"type": "string", "minLength": 1, "maxLength": 64},
		"imageUrl":     {"type": "string", "format": "uri", "pattern": "^https://"},
		"headline":     {"type": "string", "maxLength": 255},
		"primaryText":  {"type": "string", "maxLength": 5000},
		"callToAction": {"type": "string", "maxLength": 64},
		"objective":    {"type": "string", "maxLength": 64}
	}
}`

var analysisSchemaLoader = gojsonschema.NewStringLoader(analysisSchema)

// ValidateAnalysis checks a raw request body. A non-nil field map means the
// document is well formed JSON but breaks the schema.
func ValidateAnalysis(body []byte) (models.AnalysisRequest, map[string]string, error) {
	var req models.AnalysisRequest

	result, err := gojsonschema.Validate(analysisSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return req, nil, fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		fields := make(map[string]string, len(result.Errors()))
		for _, desc := range result.Errors() {
			field := desc.Field()
			if prop, ok := desc.Details()["property"].(string); ok && field == "(root)" {
				field = prop
			}
			if _, seen := fields[field]; !seen {
				fields[field] = desc.Description()
			}
		}
		return req, fields, nil
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, nil, fmt.Errorf("decode analysis request: %w", err)
	}
	return req, nil, nil
}

package report

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// hierarchicalReportSchema describes the output of Node.ToDict.
const hierarchicalReportSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "required": ["project", "projectOnTrack", "entityId", "dueDatesStats", "sprintStats", "velocityReport", "children"],
  "properties": {
    "project": {"type": "string", "minLength": 1},
    "projectOnTrack": {"type": "integer", "minimum": 0, "maximum": 4},
    "entityId": {"type": "string"},
    "entityDisplayName": {"type": "string"},
    "entityAvatarUrls": {"type": "object"},
    "dueDatesStats": {"$ref": "#/definitions/stats"},
    "sprintStats": {"$ref": "#/definitions/stats"},
    "velocityReport": {
      "type": "object",
      "properties": {
        "summary": {"type": "string"},
        "html": {"type": "string"},
        "images": {"type": "object"}
      }
    },
    "params": {"type": "object"},
    "paramsStr": {"type": "string"},
    "tmsName": {"type": "string"},
    "html": {"type": "string"},
    "children": {"type": "array", "items": {"$ref": "#"}}
  },
  "definitions": {
    "stats": {
      "type": "object",
      "required": ["summaryTable", "tasks", "counts"],
      "properties": {
        "summaryTable": {"type": "string"},
        "tasks": {"type": "object"},
        "counts": {
          "type": "object",
          "required": ["total"],
          "properties": {"total": {"type": "integer", "minimum": 0}}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(hierarchicalReportSchema)

// ValidateSerialized checks a hierarchical report read back from storage or
// received from elsewhere against the shape produced by Node.ToDict.
func ValidateSerialized(doc any) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidSerialized)
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSerialized, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidSerialized, strings.Join(msgs, "; "))
}

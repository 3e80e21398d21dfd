package httpapi

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

func mustSchema(document string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

var loginSchema = mustSchema(`{
	"type": "object",
	"required": ["code"],
	"additionalProperties": false,
	"properties": {
		"code": {"type": "string", "minLength": 1}
	}
}`)

var raidCreateSchema = mustSchema(`{
	"type": "object",
	"required": ["name"],
	"additionalProperties": false,
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"categoryId": {"type": "string"},
		"leaderId": {"type": "string"},
		"scheduledAt": {"type": "string", "format": "date-time"}
	}
}`)

var raidUpdateSchema = mustSchema(`{
	"type": "object",
	"additionalProperties": false,
	"minProperties": 1,
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"categoryId": {"type": "string"},
		"leaderId": {"type": "string"},
		"scheduledAt": {"type": "string", "format": "date-time"}
	}
}`)

var compositionCreateSchema = mustSchema(`{
	"type": "object",
	"required": ["raidId", "name"],
	"additionalProperties": false,
	"properties": {
		"raidId": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"memberIds": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		}
	}
}`)

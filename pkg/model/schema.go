package model

// Schema is the JSON Schema (Draft 2020-12) of class model documents. YAML
// documents are validated against it after conversion to JSON values.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/l3aro/go-defuse/class-model.schema.json",
  "title": "Class Model",
  "description": "Classified instructions and control flow of the classes under test",
  "type": "object",
  "required": ["classes"],
  "additionalProperties": false,
  "properties": {
    "classes": {
      "type": "array",
      "items": { "$ref": "#/$defs/Class" }
    },
    "dependencies": {
      "type": "array",
      "description": "Classes consulted for method purity only",
      "items": { "$ref": "#/$defs/Class" }
    }
  },
  "$defs": {
    "Class": {
      "type": "object",
      "required": ["class", "methods"],
      "additionalProperties": false,
      "properties": {
        "class": { "type": "string", "minLength": 1 },
        "methods": {
          "type": "array",
          "items": { "$ref": "#/$defs/Method" }
        }
      }
    },
    "Method": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "access": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "public": { "type": "boolean" },
            "static": { "type": "boolean" }
          }
        },
        "entry": { "type": "integer" },
        "instructions": {
          "type": "array",
          "items": { "$ref": "#/$defs/Instruction" }
        },
        "edges": {
          "type": "array",
          "description": "Omitted edges chain the instructions in listed order",
          "items": { "$ref": "#/$defs/Edge" }
        }
      }
    },
    "Instruction": {
      "type": "object",
      "required": ["id", "kind"],
      "additionalProperties": false,
      "properties": {
        "id": { "type": "integer" },
        "kind": {
          "enum": ["plain", "definition", "use", "iinc", "field_method_call", "method_call", "branch", "return"]
        },
        "line": { "type": "integer", "minimum": 0 },
        "variable": { "type": "string" },
        "scope": { "enum": ["", "local", "field", "static"] },
        "called_class": { "type": "string" },
        "called_method": { "type": "string" },
        "param_types": {
          "type": "array",
          "items": { "type": "string" }
        },
        "branch_id": { "type": "integer" },
        "control": {
          "type": "object",
          "required": ["branch_id", "outcome"],
          "additionalProperties": false,
          "properties": {
            "branch_id": { "type": "integer" },
            "outcome": { "type": "boolean" }
          }
        },
        "not_instrumentable": { "type": "boolean" }
      },
      "allOf": [
        {
          "if": { "properties": { "kind": { "enum": ["definition", "use", "iinc", "field_method_call"] } } },
          "then": {
            "required": ["variable", "scope"],
            "properties": { "variable": { "minLength": 1 } }
          }
        },
        {
          "if": { "properties": { "kind": { "enum": ["method_call", "field_method_call"] } } },
          "then": { "required": ["called_method"] }
        },
        {
          "if": { "properties": { "kind": { "const": "branch" } } },
          "then": { "required": ["branch_id"] }
        }
      ]
    },
    "Edge": {
      "type": "object",
      "required": ["from", "to"],
      "additionalProperties": false,
      "properties": {
        "from": { "type": "integer" },
        "to": { "type": "integer" },
        "type": {
          "enum": ["unconditional", "true", "false", "back_edge", "break", "continue"]
        }
      }
    }
  }
}`

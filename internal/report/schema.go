package report

// Schema is the JSON Schema (Draft 2020-12) for the report written by
// WriteJSON.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/l3aro/go-defuse/report.schema.json",
  "title": "Def-Use Coverage Report",
  "description": "Output schema for gdu goals --json and gdu score --json",
  "type": "object",
  "required": ["version", "total", "types", "goals"],
  "additionalProperties": false,
  "properties": {
    "version": { "type": "string" },
    "session": { "type": "string" },
    "total": { "type": "integer", "minimum": 0 },
    "types": {
      "type": "array",
      "items": { "$ref": "#/$defs/TypeCoverage" }
    },
    "score": { "$ref": "#/$defs/ScoreSummary" },
    "goals": {
      "type": "array",
      "items": { "$ref": "#/$defs/Goal" }
    }
  },
  "$defs": {
    "GoalType": {
      "enum": ["INTRA_METHOD", "INTER_METHOD", "INTRA_CLASS", "PARAMETER"]
    },
    "TypeCoverage": {
      "type": "object",
      "required": ["type", "total", "covered"],
      "additionalProperties": false,
      "properties": {
        "type": { "$ref": "#/$defs/GoalType" },
        "total": { "type": "integer", "minimum": 0 },
        "covered": { "type": "integer", "minimum": 0 }
      }
    },
    "ScoreSummary": {
      "type": "object",
      "required": ["fitness", "coverage", "covered", "timed_out"],
      "additionalProperties": false,
      "properties": {
        "fitness": { "type": "number", "minimum": 0 },
        "coverage": { "type": "number", "minimum": 0, "maximum": 1 },
        "covered": { "type": "integer", "minimum": 0 },
        "timed_out": { "type": "integer", "minimum": 0 }
      }
    },
    "DefUse": {
      "type": "object",
      "required": ["id", "class", "method", "instruction"],
      "additionalProperties": false,
      "properties": {
        "id": { "type": "integer", "minimum": 0 },
        "class": { "type": "string", "minLength": 1 },
        "method": { "type": "string", "minLength": 1 },
        "instruction": { "type": "integer", "minimum": 0 },
        "line": { "type": "integer", "minimum": 1 }
      }
    },
    "Goal": {
      "type": "object",
      "required": ["type", "variable", "use"],
      "additionalProperties": false,
      "properties": {
        "type": { "$ref": "#/$defs/GoalType" },
        "variable": { "type": "string" },
        "definition": { "$ref": "#/$defs/DefUse" },
        "use": { "$ref": "#/$defs/DefUse" },
        "fitness": { "type": "number", "minimum": 0 },
        "test_id": { "type": "string" }
      }
    }
  }
}`

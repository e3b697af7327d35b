package schema

import (
	"encoding/json"
	"os"

	"reconciliation-task-service/pkg/errors"
)

// LoadFile reads, parses and validates a schema file. Files may carry
// line (//) and block (/* */) comments outside string literals.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}
	s, err := LoadBytes(data)
	if err != nil {
		if reconErr, ok := errors.AsReconcilerError(err); ok {
			return nil, reconErr.WithContext("schema_path", path)
		}
		return nil, err
	}
	return s, nil
}

// LoadBytes parses and validates a schema from JSON bytes.
func LoadBytes(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(stripComments(data), &s); err != nil {
		return nil, errors.SchemaError("schema is not valid JSON", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// FromMap parses and validates a schema delivered as a decoded JSON object,
// the way tool calls carry it. Map decoding loses the JSON declaration
// order, so side and role order fall back to the business-first convention;
// callers that need exact declaration order pass the schema as JSON text.
func FromMap(m map[string]interface{}) (*Schema, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.SchemaError("schema object cannot be encoded", err)
	}
	return LoadBytes(data)
}

// stripComments removes // and /* */ comments outside double-quoted
// strings, keeping newlines so JSON error offsets stay meaningful.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	const (
		code = iota
		inString
		inLineComment
		inBlockComment
	)
	state := code

	for i := 0; i < len(data); i++ {
		c := data[i]
		switch state {
		case code:
			switch {
			case c == '"':
				state = inString
				out = append(out, c)
			case c == '/' && i+1 < len(data) && data[i+1] == '/':
				state = inLineComment
				i++
			case c == '/' && i+1 < len(data) && data[i+1] == '*':
				state = inBlockComment
				i++
			default:
				out = append(out, c)
			}
		case inString:
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				i++
				out = append(out, data[i])
			} else if c == '"' {
				state = code
			}
		case inLineComment:
			if c == '\n' {
				state = code
				out = append(out, c)
			}
		case inBlockComment:
			if c == '\n' {
				out = append(out, c)
			} else if c == '*' && i+1 < len(data) && data[i+1] == '/' {
				state = code
				i++
			}
		}
	}
	return out
}

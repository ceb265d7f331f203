package classify

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed decision.schema.json
var decisionSchemaJSON string

// Decision is the parsed relevance verdict for one candidate.
type Decision struct {
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ParseDecision validates and decodes a model's relevance verdict. Models
// sometimes wrap JSON in markdown fences or prose; the first JSON object in
// the text is extracted before validation.
func ParseDecision(raw string) (Decision, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return Decision{}, fmt.Errorf("no JSON object in decision output")
	}

	value, err := decodeStrictJSON([]byte(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("decode decision JSON: %w", err)
	}

	schema, err := loadDecisionSchema()
	if err != nil {
		return Decision{}, fmt.Errorf("load decision schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return Decision{}, fmt.Errorf("decision schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return Decision{}, fmt.Errorf("normalize decision JSON: %w", err)
	}

	var decision Decision
	if err := json.Unmarshal(normalized, &decision); err != nil {
		return Decision{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	decision.Reason = strings.TrimSpace(decision.Reason)
	return decision, nil
}

func loadDecisionSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("decision.schema.json", strings.NewReader(decisionSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("decision.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

// extractJSONObject returns the first balanced {...} block in the text,
// skipping braces inside JSON strings.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

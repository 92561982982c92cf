package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://bubbles.ai/schemas/"

const (
	SchemaHello       = "hello.schema.json"
	SchemaInput       = "input.schema.json"
	SchemaInputMsg    = "input_msg.schema.json"
	SchemaLedgerFrame = "ledger_frame.schema.json"
	SchemaEvent       = "event.schema.json"
	SchemaSnapshot    = "snapshot.schema.json"
)

// Validator checks raw frames against the embedded JSON schemas before they
// are decoded into Go structs. Safe for concurrent use after construction.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	names, err := fs.Glob(schemaFS, "schemas/*.schema.json")
	if err != nil {
		return nil, err
	}
	for _, p := range names {
		b, err := schemaFS.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+path.Base(p), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", p, err)
		}
	}

	v := &Validator{schemas: map[string]*jsonschema.Schema{}}
	for _, p := range names {
		name := path.Base(p)
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

func (v *Validator) Validate(schema string, raw []byte) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ValidateValue marshals v and validates the result.
func (v *Validator) ValidateValue(schema string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return v.Validate(schema, b)
}

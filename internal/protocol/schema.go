package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://gemkitchen.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello: "hello.schema.json",
	TypeAct:   "act.schema.json",
}

// Validator checks inbound client messages against the embedded JSON schemas.
// It is safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaFiles))}
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

// Validate checks raw against the schema registered for msgType. Types without
// a schema pass.
func (v *Validator) Validate(msgType string, raw []byte) error {
	s, ok := v.schemas[msgType]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// DecodeAct validates and decodes an ACT message.
func (v *Validator) DecodeAct(raw []byte) (ActMsg, error) {
	var act ActMsg
	if err := v.Validate(TypeAct, raw); err != nil {
		return act, err
	}
	if err := json.Unmarshal(raw, &act); err != nil {
		return act, err
	}
	return act, nil
}

// DecodeHello validates and decodes a HELLO message.
func (v *Validator) DecodeHello(raw []byte) (HelloMsg, error) {
	var hello HelloMsg
	if err := v.Validate(TypeHello, raw); err != nil {
		return hello, err
	}
	if err := json.Unmarshal(raw, &hello); err != nil {
		return hello, err
	}
	return hello, nil
}

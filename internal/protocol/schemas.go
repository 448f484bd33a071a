package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeHello:  "hello.schema.json",
	TypePlace:  "place.schema.json",
	TypeFilter: "filter.schema.json",
	TypeScan:   "scan.schema.json",
	TypeList:   "list.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, name := range schemaFiles {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			s, err := c.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks an inbound message against the schema for its type. Types without
// a schema are rejected.
func Validate(msgType string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[msgType]
	if !ok {
		return fmt.Errorf("unsupported message type %q", msgType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

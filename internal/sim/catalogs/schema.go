package catalogs

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

const schemaBaseURL = "mem://catalogs/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	names := []string{"templates", "waves", "enemies"}
	for _, name := range names {
		b, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(schemaBaseURL+name+".schema.json", bytes.NewReader(b)); err != nil {
			schemasErr = err
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := c.Compile(schemaBaseURL + name + ".schema.json")
		if err != nil {
			schemasErr = fmt.Errorf("compile %s schema: %w", name, err)
			return
		}
		out[name] = s
	}
	schemas = out
}

// validateDoc checks raw against the embedded schema for the named catalog.
func validateDoc(name string, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("no schema for %s", name)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// Package widgetschema validates incoming widget documents against the
// embedded JSON Schema before they are decoded and defaulted.
package widgetschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed widget.schema.json
var schemaJSON []byte

const schemaURL = "widget.schema.json"

var schema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("widgetschema: add resource: %v", err))
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("widgetschema: compile: %v", err))
	}
	return s
}

// Error describes the first schema violation found in a widget document.
type Error struct {
	// Path is the JSON pointer of the offending value, "" for the root.
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "widget: " + e.Message
	}
	return "widget" + strings.ReplaceAll(e.Path, "/", ".") + ": " + e.Message
}

// Validate checks one raw widget document. A violation is returned as *Error;
// malformed JSON is returned as a plain error.
func Validate(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("widget: invalid JSON: %w", err)
	}
	return validateValue(doc)
}

// ValidateAll checks every widget of a list and reports the first violation
// prefixed with the widget's index.
func ValidateAll(raws []json.RawMessage) error {
	for i, raw := range raws {
		if err := Validate(raw); err != nil {
			var se *Error
			if errors.As(err, &se) {
				return &Error{Path: fmt.Sprintf("/%d%s", i, se.Path), Message: se.Message}
			}
			return fmt.Errorf("widget %d: %w", i, err)
		}
	}
	return nil
}

func validateValue(doc any) error {
	err := schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaf := deepest(ve)
	return &Error{Path: leaf.InstanceLocation, Message: leaf.Message}
}

// deepest follows the first cause chain down to the most specific violation.
func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

package schema

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned for documents that cannot be decoded
var ErrInvalidDocument = errors.New("invalid definition document")

// Document is the serialized form of one definition. Type references use
// public type names of the same document; replaces entries use internal
// names of the previous revision.
type Document struct {
	API        string         `yaml:"api" json:"api"`
	Revision   int            `yaml:"revision" json:"revision"`
	Side       string         `yaml:"side" json:"side"`
	Records    []RecordDoc    `yaml:"records,omitempty" json:"records,omitempty"`
	Enums      []EnumDoc      `yaml:"enums,omitempty" json:"enums,omitempty"`
	Operations []OperationDoc `yaml:"operations,omitempty" json:"operations,omitempty"`
}

// RecordDoc describes a record type
type RecordDoc struct {
	Name      string     `yaml:"name" json:"name"`
	Internal  string     `yaml:"internal,omitempty" json:"internal,omitempty"`
	ID        *int       `yaml:"id,omitempty" json:"id,omitempty"`
	Exception bool       `yaml:"exception,omitempty" json:"exception,omitempty"`
	Abstract  bool       `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Extends   string     `yaml:"extends,omitempty" json:"extends,omitempty"`
	Replaces  string     `yaml:"replaces,omitempty" json:"replaces,omitempty"`
	New       bool       `yaml:"new,omitempty" json:"new,omitempty"`
	Fields    []FieldDoc `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// FieldDoc describes a field. Replaces lists internal names of fields
// declared by the owner's predecessor.
type FieldDoc struct {
	Name        string   `yaml:"name" json:"name"`
	Internal    string   `yaml:"internal,omitempty" json:"internal,omitempty"`
	Type        TypeExpr `yaml:"type" json:"type"`
	Optionality string   `yaml:"optionality,omitempty" json:"optionality,omitempty"`
	Replaces    []string `yaml:"replaces,omitempty" json:"replaces,omitempty"`
	New         bool     `yaml:"new,omitempty" json:"new,omitempty"`
}

// EnumDoc describes an enum type
type EnumDoc struct {
	Name     string      `yaml:"name" json:"name"`
	Internal string      `yaml:"internal,omitempty" json:"internal,omitempty"`
	ID       *int        `yaml:"id,omitempty" json:"id,omitempty"`
	Replaces string      `yaml:"replaces,omitempty" json:"replaces,omitempty"`
	New      bool        `yaml:"new,omitempty" json:"new,omitempty"`
	Members  []MemberDoc `yaml:"members,omitempty" json:"members,omitempty"`
}

// MemberDoc describes an enum member
type MemberDoc struct {
	Name     string `yaml:"name" json:"name"`
	Internal string `yaml:"internal,omitempty" json:"internal,omitempty"`
	Replaces string `yaml:"replaces,omitempty" json:"replaces,omitempty"`
	New      bool   `yaml:"new,omitempty" json:"new,omitempty"`
}

// OperationDoc describes an operation
type OperationDoc struct {
	Name     string   `yaml:"name" json:"name"`
	Internal string   `yaml:"internal,omitempty" json:"internal,omitempty"`
	Input    string   `yaml:"input" json:"input"`
	Output   string   `yaml:"output" json:"output"`
	Throws   []string `yaml:"throws,omitempty" json:"throws,omitempty"`
	Replaces string   `yaml:"replaces,omitempty" json:"replaces,omitempty"`
	New      bool     `yaml:"new,omitempty" json:"new,omitempty"`
}

// Parse decodes a YAML or JSON document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.API == "" {
		return nil, fmt.Errorf("%w: missing api name", ErrInvalidDocument)
	}
	if doc.Revision < 0 {
		return nil, fmt.Errorf("%w: negative revision %d", ErrInvalidDocument, doc.Revision)
	}
	return &doc, nil
}

// Marshal encodes a document as YAML
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", doc.API, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", doc.API, err)
	}
	return buf.Bytes(), nil
}

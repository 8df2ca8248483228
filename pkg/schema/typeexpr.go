package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Type expression kinds of the mapping form
const (
	KindString  = "string"
	KindNumeric = "numeric"
	KindList    = "list"
)

// TypeExpr is a field type. In documents it is either a scalar naming an
// atomic type, "string" or a user type:
//
//	type: int64
//	type: Customer
//
// or a mapping for parameterized types:
//
//	type: {kind: string, bound: 50}
//	type: {kind: numeric, precision: 10, scale: 2}
//	type: {kind: list, element: Customer, bound: 10}
type TypeExpr struct {
	Name      string    `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      string    `yaml:"kind,omitempty" json:"kind,omitempty"`
	Bound     int       `yaml:"bound,omitempty" json:"bound,omitempty"`
	Precision int       `yaml:"precision,omitempty" json:"precision,omitempty"`
	Scale     int       `yaml:"scale,omitempty" json:"scale,omitempty"`
	Element   *TypeExpr `yaml:"element,omitempty" json:"element,omitempty"`
}

// typeExprFields avoids recursion into the custom unmarshaler
type typeExprFields TypeExpr

// UnmarshalYAML accepts the scalar and the mapping form
func (t *TypeExpr) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return fmt.Errorf("line %d: empty type", node.Line)
		}
		*t = TypeExpr{Name: node.Value}
		return nil

	case yaml.MappingNode:
		var fields typeExprFields
		if err := node.Decode(&fields); err != nil {
			return err
		}
		*t = TypeExpr(fields)
		if t.Kind == "" && t.Name == "" {
			return fmt.Errorf("line %d: type needs a kind or a name", node.Line)
		}
		return nil

	default:
		return fmt.Errorf("line %d: type must be a name or a mapping", node.Line)
	}
}

// MarshalYAML writes the scalar form where possible
func (t TypeExpr) MarshalYAML() (any, error) {
	if t.isScalar() {
		return t.Name, nil
	}
	return typeExprFields(t), nil
}

// MarshalJSON mirrors MarshalYAML
func (t TypeExpr) MarshalJSON() ([]byte, error) {
	if t.isScalar() {
		return json.Marshal(t.Name)
	}
	return json.Marshal(typeExprFields(t))
}

// UnmarshalJSON accepts the forms written by MarshalJSON
func (t *TypeExpr) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if name == "" {
			return fmt.Errorf("empty type")
		}
		*t = TypeExpr{Name: name}
		return nil
	}

	var fields typeExprFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("type must be a name or an object: %w", err)
	}
	*t = TypeExpr(fields)
	if t.Kind == "" && t.Name == "" {
		return fmt.Errorf("type needs a kind or a name")
	}
	return nil
}

func (t TypeExpr) isScalar() bool {
	return t.Kind == "" && t.Bound == 0 && t.Element == nil
}

func (t TypeExpr) String() string {
	if t.isScalar() {
		return t.Name
	}
	switch t.Kind {
	case KindNumeric:
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	case KindList:
		if t.Element == nil {
			return "list"
		}
		if t.Bound > 0 {
			return fmt.Sprintf("%s[%d]", t.Element, t.Bound)
		}
		return t.Element.String() + "[]"
	default:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Bound)
	}
}

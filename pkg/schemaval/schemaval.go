// Package schemaval reconciles Arrow schemas against what a destination
// engine can represent. Fields whose types cannot cross into the engine are
// rejected or dropped according to a configurable policy, preserving the
// original ordering of the surviving fields.
package schemaval

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/crystalxyz/datafusion-table-providers/pkg/dbconn"
)

// Policy governs what happens when a schema contains unsupported fields.
type Policy int

const (
	// PolicyFail rejects the whole schema with an error naming the first
	// offending field.
	PolicyFail Policy = iota

	// PolicyWarn drops offending fields and logs a warning for each.
	PolicyWarn

	// PolicyIgnore drops offending fields silently.
	PolicyIgnore
)

// String returns the configuration spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyFail:
		return "fail"
	case PolicyWarn:
		return "warn"
	case PolicyIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy parses a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail", "error":
		return PolicyFail, nil
	case "warn":
		return PolicyWarn, nil
	case "ignore", "silent":
		return PolicyIgnore, nil
	default:
		return PolicyFail, fmt.Errorf("schemaval: unknown unsupported-type policy %q (must be fail, warn, or ignore)", s)
	}
}

// TypeAcceptor reports whether the destination engine has a native
// counterpart for the given Arrow type. It is a pluggable collaborator: a
// field that passes the structural supportability rule is still rejected
// when the engine itself cannot map its type.
type TypeAcceptor func(arrow.DataType) bool

// Reconciler filters or rejects schema fields whose types cannot be
// represented in the destination engine.
type Reconciler struct {
	policy  Policy
	accepts TypeAcceptor
	logger  *zap.Logger
}

// New builds a Reconciler. A nil acceptor accepts every type; a nil logger
// discards warnings.
func New(policy Policy, accepts TypeAcceptor, logger *zap.Logger) *Reconciler {
	if accepts == nil {
		accepts = func(arrow.DataType) bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{policy: policy, accepts: accepts, logger: logger}
}

// Policy returns the reconciler's configured policy.
func (r *Reconciler) Policy() Policy {
	return r.policy
}

// Reconcile checks every field of the schema. When nothing is unsupported,
// the original schema is returned unchanged, under every policy. Otherwise
// the behavior depends on the policy: PolicyFail returns a SCHEMA error for
// the first offending field; PolicyWarn and PolicyIgnore drop offending
// fields, keeping the relative order of the survivors.
func (r *Reconciler) Reconcile(schema *arrow.Schema) (*arrow.Schema, error) {
	kept := make([]arrow.Field, 0, schema.NumFields())
	dropped := false

	for _, field := range schema.Fields() {
		if r.FieldSupported(field) {
			kept = append(kept, field)
			continue
		}

		switch r.policy {
		case PolicyFail:
			return nil, dbconn.NewError(dbconn.ErrCategorySchema, dbconn.CodeUnsupportedDataType,
				fmt.Sprintf("field %q has unsupported data type %s", field.Name, field.Type)).
				WithDetail("field", field.Name).
				WithDetail("data_type", field.Type.String())
		case PolicyWarn:
			r.logger.Warn("dropping field with unsupported data type",
				zap.String("field", field.Name),
				zap.String("data_type", field.Type.String()))
		}
		dropped = true
	}

	if !dropped {
		return schema, nil
	}

	md := schema.Metadata()
	return arrow.NewSchema(kept, &md), nil
}

// FieldSupported reports whether a single field survives both the
// structural rule and the engine's type-acceptance check.
func (r *Reconciler) FieldSupported(field arrow.Field) bool {
	return IsDataTypeSupported(field.Type) && r.accepts(field.Type)
}

// IsDataTypeSupported is the structural supportability rule, applied
// recursively: list-like fields only carry primitive, text, binary or
// boolean elements (no list-of-struct, no list-of-list); struct fields
// require every member to be supported; everything else passes.
func IsDataTypeSupported(dt arrow.DataType) bool {
	switch t := dt.(type) {
	case *arrow.ListType:
		return listElemSupported(t.Elem())
	case *arrow.LargeListType:
		return listElemSupported(t.Elem())
	case *arrow.FixedSizeListType:
		return listElemSupported(t.Elem())
	case *arrow.StructType:
		for _, f := range t.Fields() {
			if !IsDataTypeSupported(f.Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func listElemSupported(elem arrow.DataType) bool {
	if arrow.IsPrimitive(elem.ID()) {
		return true
	}
	switch elem.ID() {
	case arrow.STRING, arrow.BINARY, arrow.STRING_VIEW, arrow.BINARY_VIEW, arrow.BOOL:
		return true
	default:
		return false
	}
}

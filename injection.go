package ioc

import (
	"fmt"
	"reflect"
	"strings"
)

// injectTag is the struct tag marking a field as an injection point.
//
// The tag value is "name,option,option...". An explicit name resolves by
// name; an empty name resolves by the field's declared type. Supported
// options are "optional" and "nocache".
//
//	type OrderController struct {
//	    Orders   *OrderService `inject:""`                    // by type
//	    Payments PaymentGateway `inject:"stripeGateway"`      // by name
//	    Audit    *AuditLog      `inject:"auditLog,optional"`  // optional
//	}
const injectTag = "inject"

// ResolveStrategy describes how an injection point's dependency name was
// declared.
type ResolveStrategy int

const (
	// StrategyAuto resolves by explicit name when one was declared,
	// falling back to the name derived from the field's type.
	StrategyAuto ResolveStrategy = iota

	// StrategyByName resolves by an explicit string name, avoiding any
	// compile-time reference to the dependency's type.
	StrategyByName

	// StrategyByType resolves by the name derived from the field's
	// declared type.
	StrategyByType
)

// String returns the string representation of the ResolveStrategy.
func (s ResolveStrategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyByName:
		return "by-name"
	case StrategyByType:
		return "by-type"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// InjectionPoint is a declared slot on a component type that is filled with a
// resolved dependency when an instance is injected.
type InjectionPoint struct {
	// Field is the name of the struct field to fill.
	Field string

	// Dependency is the name resolved through the provider sources.
	Dependency string

	// Required controls the error policy: a required point whose
	// dependency cannot be supplied fails injection, an optional one is
	// left unset.
	Required bool

	// Strategy records how Dependency was declared.
	Strategy ResolveStrategy

	// CacheEnabled allows the executor to cache the resolved value per
	// instance.
	CacheEnabled bool

	fieldIndex []int
	fieldType  reflect.Type
}

// InjectionMetadata is the complete, ordered set of injection points for one
// component type. It is built once when the type is registered and never
// mutated afterwards, except to overwrite a point targeting the same field.
type InjectionMetadata struct {
	Type reflect.Type

	points  []*InjectionPoint
	byField map[string]int
}

// Points returns the injection points in declaration order.
func (m *InjectionMetadata) Points() []*InjectionPoint {
	points := make([]*InjectionPoint, len(m.points))
	copy(points, m.points)
	return points
}

// Point returns the injection point targeting the given field.
func (m *InjectionMetadata) Point(field string) (*InjectionPoint, bool) {
	i, ok := m.byField[field]
	if !ok {
		return nil, false
	}
	return m.points[i], true
}

// Len returns the number of injection points.
func (m *InjectionMetadata) Len() int {
	return len(m.points)
}

// AddPoint declares an injection point programmatically. A point targeting an
// already-declared field overwrites the existing one. The field must exist on
// the metadata's type and be exported.
func (m *InjectionMetadata) AddPoint(point *InjectionPoint) error {
	structType := m.Type
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}

	field, ok := structType.FieldByName(point.Field)
	if !ok {
		return fmt.Errorf("injection point: %s has no field %q", formatType(m.Type), point.Field)
	}
	if !field.IsExported() {
		return fmt.Errorf("injection point: field %s.%s is not exported", formatType(m.Type), point.Field)
	}

	p := *point
	p.fieldIndex = field.Index
	p.fieldType = field.Type
	if p.Dependency == "" {
		p.Dependency = dependencyNameFor(field.Type)
	}

	if i, ok := m.byField[point.Field]; ok {
		m.points[i] = &p
		return nil
	}

	m.byField[point.Field] = len(m.points)
	m.points = append(m.points, &p)
	return nil
}

// AnalyzeType builds the InjectionMetadata for a component type by reading
// its `inject` struct tags. t may be a struct type or a pointer to one.
// Types without injection points yield empty metadata.
func AnalyzeType(t reflect.Type) (*InjectionMetadata, error) {
	if t == nil {
		return nil, fmt.Errorf("analyze: %w", ErrNilType)
	}

	structType := t
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("analyze: %s is not a struct type", formatType(t))
	}

	metadata := &InjectionMetadata{
		Type:    t,
		byField: make(map[string]int),
	}

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)

		tag, ok := field.Tag.Lookup(injectTag)
		if !ok {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("analyze: inject tag on unexported field %s.%s", formatType(t), field.Name)
		}

		point, err := parseInjectTag(field, tag)
		if err != nil {
			return nil, fmt.Errorf("analyze: field %s.%s: %w", formatType(t), field.Name, err)
		}

		metadata.byField[field.Name] = len(metadata.points)
		metadata.points = append(metadata.points, point)
	}

	return metadata, nil
}

func parseInjectTag(field reflect.StructField, tag string) (*InjectionPoint, error) {
	parts := strings.Split(tag, ",")

	point := &InjectionPoint{
		Field:        field.Name,
		Required:     true,
		CacheEnabled: true,
		fieldIndex:   field.Index,
		fieldType:    field.Type,
	}

	if name := strings.TrimSpace(parts[0]); name != "" {
		point.Dependency = name
		point.Strategy = StrategyByName
	} else {
		point.Dependency = dependencyNameFor(field.Type)
		point.Strategy = StrategyByType
	}

	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "optional":
			point.Required = false
		case "nocache":
			point.CacheEnabled = false
		case "":
			// trailing comma
		default:
			return nil, fmt.Errorf("unknown inject option %q", opt)
		}
	}

	return point, nil
}

// dependencyNameFor derives the dependency name from a declared type: the
// bare type name with pointers stripped. The derivation is purely textual, so
// a field may reference a dependency type that is registered later; the name
// is only looked up once the owning instance is injected.
func dependencyNameFor(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

package table

import (
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
)

// CellSpec describes how the values of one column are decoded. Cells are
// stored as Avro binary; a CellSpec supplies the reader schema.
type CellSpec struct {
	schema string
	codec  *goavro.Codec
}

// NewCellSpec compiles an Avro schema into a CellSpec.
func NewCellSpec(schema string) (*CellSpec, error) {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid avro cell schema").
			WithDetail("schema", schema)
	}
	return &CellSpec{schema: schema, codec: codec}, nil
}

// Schema returns the Avro schema text.
func (s *CellSpec) Schema() string {
	return s.schema
}

// Encode serializes a native Go value (as produced by goavro) to Avro binary.
func (s *CellSpec) Encode(native interface{}) ([]byte, error) {
	buf, err := s.codec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to encode cell")
	}
	return buf, nil
}

// Decode deserializes Avro binary into a native Go value.
func (s *CellSpec) Decode(value []byte) (interface{}, error) {
	native, _, err := s.codec.NativeFromBinary(value)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to decode cell")
	}
	return native, nil
}

// ParseOverrides compiles a "family:qualifier" -> schema map.
func ParseOverrides(schemas map[string]string) (map[Column]*CellSpec, error) {
	if len(schemas) == 0 {
		return nil, nil
	}
	overrides := make(map[Column]*CellSpec, len(schemas))
	for name, schema := range schemas {
		spec, err := NewCellSpec(schema)
		if err != nil {
			return nil, err
		}
		overrides[ParseColumn(name)] = spec
	}
	return overrides, nil
}

// DecodeRow sets Cell.Decoded for every cell whose column has an override.
// A family-level override applies to all qualifiers of that family unless a
// qualifier-level override exists.
func DecodeRow(row *RowData, overrides map[Column]*CellSpec) error {
	if row == nil || len(overrides) == 0 {
		return nil
	}
	for i := range row.Cells {
		c := &row.Cells[i]
		spec, ok := overrides[Column{Family: c.Family, Qualifier: c.Qualifier}]
		if !ok {
			spec, ok = overrides[Column{Family: c.Family}]
		}
		if !ok {
			continue
		}
		decoded, err := spec.Decode(c.Value)
		if err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to decode row").
				WithDetail("entity_id", string(row.EntityID)).
				WithDetail("column", Column{Family: c.Family, Qualifier: c.Qualifier}.String())
		}
		c.Decoded = decoded
	}
	return nil
}

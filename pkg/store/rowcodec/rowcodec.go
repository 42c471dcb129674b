// Package rowcodec serializes rows for object-store backends. A row is
// stored as one object holding its JSON encoding, compressed with the
// bucket's configured algorithm, under the key <prefix><table>/<entity id>.
// Keys sort in entity id order, so a listing doubles as a scan.
package rowcodec

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/tablepool/pkg/compression"
	"github.com/ajitpratap0/tablepool/pkg/poolerrors"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

// Codec encodes and decodes row objects.
type Codec struct {
	comp compression.Compressor
}

// New returns a codec compressing with the named algorithm ("" or "none"
// stores plain JSON).
func New(algorithm string) (*Codec, error) {
	algo, err := compression.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: algo,
		Level:     compression.Default,
	})
	if err != nil {
		return nil, err
	}
	return &Codec{comp: comp}, nil
}

// Algorithm returns the compression algorithm.
func (c *Codec) Algorithm() compression.Algorithm {
	return c.comp.Algorithm()
}

// Encode serializes row.
func (c *Codec) Encode(row *table.RowData) ([]byte, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to encode row").
			WithDetail("entity_id", string(row.EntityID))
	}
	return c.comp.Compress(data)
}

// Decode deserializes a row object.
func (c *Codec) Decode(data []byte) (*table.RowData, error) {
	raw, err := c.comp.Decompress(data)
	if err != nil {
		return nil, err
	}
	var row table.RowData
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeData, "failed to decode row")
	}
	return &row, nil
}

// KeyPrefix returns the common prefix of every row object of tableName.
func KeyPrefix(prefix, tableName string) string {
	return prefix + tableName + "/"
}

// ObjectKey returns the object key of a row.
func ObjectKey(prefix, tableName string, id table.EntityID) string {
	return KeyPrefix(prefix, tableName) + string(id)
}

// EntityID recovers the entity id from an object key. ok is false for keys
// outside the table.
func EntityID(prefix, tableName, key string) (table.EntityID, bool) {
	id, ok := strings.CutPrefix(key, KeyPrefix(prefix, tableName))
	if !ok || id == "" {
		return "", false
	}
	return table.EntityID(id), true
}

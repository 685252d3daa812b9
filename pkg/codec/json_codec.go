package codec

import "encoding/json"

// JSONCodec is the default Codec. The teacher's own WAL and snapshot
// layers serialize every record as JSON before checksumming it; this
// mirrors that choice for the wire protocol's default.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/devicewatch-io/defender-agent/pkg/pool"
)

// FormatCBOR is the topic format segment for CBOR-encoded reports.
const FormatCBOR = "cbor"

// CBORCodec encodes reports as CBOR. Struct fields without cbor tags fall
// back to their json tags, so the report model encodes identically under
// both codecs.
type CBORCodec struct {
	enc     cbor.EncMode
	dec     cbor.DecMode
	buffers *pool.Pool[*pool.Buffer]
}

// NewCBOR returns a CBOR codec. Decoding into any produces map[string]any
// containers so that classification code can treat both formats uniformly.
func NewCBOR() (*CBORCodec, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}

	return &CBORCodec{
		enc:     enc,
		dec:     dec,
		buffers: pool.NewBufferPool(),
	}, nil
}

func (c *CBORCodec) Format() string {
	return FormatCBOR
}

func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	buf := c.buffers.Get()
	defer c.buffers.Put(buf)

	if err := c.enc.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *CBORCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

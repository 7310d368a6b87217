package codec

import (
	"bytes"

	"github.com/goccy/go-json"

	"github.com/devicewatch-io/defender-agent/pkg/pool"
)

// FormatJSON is the topic format segment for JSON-encoded reports.
const FormatJSON = "json"

// JSONCodec encodes reports as JSON.
type JSONCodec struct {
	buffers *pool.Pool[*pool.Buffer]
}

// NewJSON returns a JSON codec with a shared encode-buffer pool.
func NewJSON() *JSONCodec {
	return &JSONCodec{buffers: pool.NewBufferPool()}
}

func (c *JSONCodec) Format() string {
	return FormatJSON
}

func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	buf := c.buffers.Get()
	defer c.buffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	// Encoder appends a newline; the payload must be the bare document.
	data := bytes.TrimRight(buf.Bytes(), "\n")
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

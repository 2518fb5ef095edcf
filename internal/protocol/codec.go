package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// Codec turns envelopes into data channel payloads and back.
type Codec interface {
	Name() string
	Encode(e Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

func NewCodec(name string) (Codec, error) {
	switch name {
	case "proto", "":
		return ProtoCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	case "cbor":
		c, err := NewCBORCodec()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (known: %v)", name, CodecNames())
	}
}

func CodecNames() []string {
	return []string{"cbor", "json", "proto"}
}

// Decode parses an inbound payload with c.
func Decode(c Codec, data []byte) (Envelope, error) {
	return c.Decode(data)
}

type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Encode(e Envelope) ([]byte, error) {
	m, err := toWire(e)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, fieldDataType, protowire.BytesType)
	b = protowire.AppendString(b, m.DataType)
	if m.Value != "" {
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendString(b, m.Value)
	}
	if m.File != nil {
		b = protowire.AppendTag(b, fieldFile, protowire.BytesType)
		b = protowire.AppendBytes(b, m.File)
	}
	if m.FileName != "" {
		b = protowire.AppendTag(b, fieldFileName, protowire.BytesType)
		b = protowire.AppendString(b, m.FileName)
	}
	if m.FileType != "" {
		b = protowire.AppendTag(b, fieldFileType, protowire.BytesType)
		b = protowire.AppendString(b, m.FileType)
	}
	return b, nil
}

func (ProtoCodec) Decode(data []byte) (Envelope, error) {
	var m wireMessage
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldDataType:
			m.DataType = string(v)
		case fieldValue:
			m.Value = string(v)
		case fieldFile:
			m.File = append([]byte{}, v...)
		case fieldFileName:
			m.FileName = string(v)
		case fieldFileType:
			m.FileType = string(v)
		}
	}
	return fromWire(m)
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(e Envelope) ([]byte, error) {
	m, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (JSONCodec) Decode(data []byte) (Envelope, error) {
	var m wireMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return fromWire(m)
}

type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() (CBORCodec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return CBORCodec{}, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return CBORCodec{}, err
	}
	return CBORCodec{enc: em, dec: dm}, nil
}

func (CBORCodec) Name() string { return "cbor" }

func (c CBORCodec) Encode(e Envelope) ([]byte, error) {
	m, err := toWire(e)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(m)
}

func (c CBORCodec) Decode(data []byte) (Envelope, error) {
	var m wireMessage
	if err := c.dec.Unmarshal(data, &m); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return fromWire(m)
}

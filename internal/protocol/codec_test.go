package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var codecs []Codec
	for _, name := range CodecNames() {
		c, err := NewCodec(name)
		if err != nil {
			t.Fatalf("NewCodec(%q) failed: %v", name, err)
		}
		codecs = append(codecs, c)
	}
	return codecs
}

func TestCodecFileRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xfe, 0xff, 'h', 'i'}
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			raw, err := c.Encode(FileEnvelope("photo.png", "image/png", data))
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := Decode(c, raw)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got.Kind != KindFile {
				t.Fatalf("expected FILE, got %s", got.Kind)
			}
			if got.File.Name != "photo.png" {
				t.Errorf("expected name photo.png, got %q", got.File.Name)
			}
			if got.File.MimeType != "image/png" {
				t.Errorf("expected mime image/png, got %q", got.File.MimeType)
			}
			if !bytes.Equal(got.File.Data, data) {
				t.Errorf("data mismatch: %v", got.File.Data)
			}
		})
	}
}

func TestCodecTextRoundTrip(t *testing.T) {
	for _, c := range allCodecs(t) {
		for _, text := range []string{"hello there", ""} {
			raw, err := c.Encode(TextEnvelope(text))
			if err != nil {
				t.Fatalf("%s: Encode failed: %v", c.Name(), err)
			}
			got, err := c.Decode(raw)
			if err != nil {
				t.Fatalf("%s: Decode failed: %v", c.Name(), err)
			}
			if got.Kind != KindText || got.Text != text || got.File != nil {
				t.Errorf("%s: unexpected envelope %+v", c.Name(), got)
			}
		}
	}
}

func TestCodecEmptyFile(t *testing.T) {
	for _, c := range allCodecs(t) {
		raw, err := c.Encode(FileEnvelope("empty.bin", DefaultMimeType, nil))
		if err != nil {
			t.Fatalf("%s: Encode failed: %v", c.Name(), err)
		}
		got, err := c.Decode(raw)
		if err != nil {
			t.Fatalf("%s: Decode failed: %v", c.Name(), err)
		}
		if got.File == nil || len(got.File.Data) != 0 {
			t.Errorf("%s: expected empty payload, got %+v", c.Name(), got.File)
		}
	}
}

func TestDecodeUnknownDataType(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`{"dataType":"UNKNOWN"}`))
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		raw   []byte
	}{
		{"json missing dataType", JSONCodec{}, []byte(`{"value":"x"}`)},
		{"json file without name", JSONCodec{}, []byte(`{"dataType":"FILE","file":"aGk="}`)},
		{"json garbage", JSONCodec{}, []byte(`not json`)},
		{"proto truncated", ProtoCodec{}, []byte{0xff}},
		{"proto empty", ProtoCodec{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.codec.Decode(tt.raw); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestJSONWireShape(t *testing.T) {
	raw, err := JSONCodec{}.Encode(TextEnvelope("hi"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(raw) != `{"dataType":"OTHER","value":"hi"}` {
		t.Errorf("unexpected wire shape %s", raw)
	}
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	bad := Envelope{Kind: KindFile, File: &FilePayload{Data: []byte("x")}}
	if _, err := (ProtoCodec{}).Encode(bad); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestNewCodecUnknown(t *testing.T) {
	if _, err := NewCodec("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

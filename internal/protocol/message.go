package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFileSelection = errors.New("no file selected")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrSendFailed         = errors.New("send failed")
)

// Envelope is a single message exchanged over a connection. Exactly one of
// Text or File is meaningful, as indicated by Kind.
type Envelope struct {
	Kind Kind
	Text string
	File *FilePayload
}

type FilePayload struct {
	Name     string
	MimeType string
	Data     []byte
}

func TextEnvelope(text string) Envelope {
	return Envelope{Kind: KindText, Text: text}
}

func FileEnvelope(name, mimeType string, data []byte) Envelope {
	return Envelope{
		Kind: KindFile,
		File: &FilePayload{Name: name, MimeType: mimeType, Data: data},
	}
}

func (e Envelope) Validate() error {
	switch e.Kind {
	case KindText:
		if e.File != nil {
			return fmt.Errorf("%w: text envelope carries a file", ErrMalformedMessage)
		}
	case KindFile:
		if e.File == nil {
			return fmt.Errorf("%w: file envelope without payload", ErrMalformedMessage)
		}
		if e.File.Name == "" {
			return fmt.Errorf("%w: file envelope without name", ErrMalformedMessage)
		}
		if e.Text != "" {
			return fmt.Errorf("%w: file envelope carries text", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedMessage, e.Kind)
	}
	return nil
}

// wireMessage is the transport-agnostic shape shared by every codec.
type wireMessage struct {
	DataType string `json:"dataType" cbor:"dataType"`
	Value    string `json:"value,omitempty" cbor:"value,omitempty"`
	File     []byte `json:"file,omitempty" cbor:"file,omitempty"`
	FileName string `json:"fileName,omitempty" cbor:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty" cbor:"fileType,omitempty"`
}

func toWire(e Envelope) (wireMessage, error) {
	if err := e.Validate(); err != nil {
		return wireMessage{}, err
	}
	if e.Kind == KindText {
		return wireMessage{DataType: string(DataTypeOther), Value: e.Text}, nil
	}
	return wireMessage{
		DataType: string(DataTypeFile),
		File:     e.File.Data,
		FileName: e.File.Name,
		FileType: e.File.MimeType,
	}, nil
}

func fromWire(m wireMessage) (Envelope, error) {
	switch DataType(m.DataType) {
	case DataTypeOther:
		return TextEnvelope(m.Value), nil
	case DataTypeFile:
		if m.FileName == "" {
			return Envelope{}, fmt.Errorf("%w: file message without fileName", ErrMalformedMessage)
		}
		data := m.File
		if data == nil {
			data = []byte{}
		}
		return FileEnvelope(m.FileName, m.FileType, data), nil
	case "":
		return Envelope{}, fmt.Errorf("%w: missing dataType", ErrMalformedMessage)
	default:
		return Envelope{}, fmt.Errorf("%w: unknown dataType %q", ErrMalformedMessage, m.DataType)
	}
}

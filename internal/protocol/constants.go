package protocol

import "google.golang.org/protobuf/encoding/protowire"

const (
	DefaultMimeType = "application/octet-stream"
)

// Protobuf field numbers of the wire message.
const (
	fieldDataType protowire.Number = 1
	fieldValue    protowire.Number = 2
	fieldFile     protowire.Number = 3
	fieldFileName protowire.Number = 4
	fieldFileType protowire.Number = 5
)

// DataType discriminates envelopes on the wire. Text travels as OTHER so
// that browser peers using the same tag set interoperate.
type DataType string

const (
	DataTypeFile  DataType = "FILE"
	DataTypeOther DataType = "OTHER"
)

type Kind uint8

const (
	KindText Kind = iota + 1
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

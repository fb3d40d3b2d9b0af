package guest

const (
	opUnreachable byte = 0x00
	opEnd         byte = 0x0b
	opCall        byte = 0x10
	opLocalGet    byte = 0x20
	opI32Const    byte = 0x41
	opI32Eq       byte = 0x46
	opI32GeS      byte = 0x4e
	opI32Or       byte = 0x72
)

// Code accumulates instruction bytes for a function body.
type Code []byte

func (c Code) Unreachable() Code { return append(c, opUnreachable) }

func (c Code) LocalGet(idx uint32) Code {
	return appendULEB128(append(c, opLocalGet), idx)
}

func (c Code) I32Const(v int32) Code {
	return appendSLEB128(append(c, opI32Const), int64(v))
}

func (c Code) Call(fn uint32) Code {
	return appendULEB128(append(c, opCall), fn)
}

func (c Code) I32Eq() Code  { return append(c, opI32Eq) }
func (c Code) I32GeS() Code { return append(c, opI32GeS) }
func (c Code) I32Or() Code  { return append(c, opI32Or) }

package guest

const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionExport   byte = 7
	sectionCode     byte = 10

	funcTypeByte   byte = 0x60
	externKindFunc byte = 0x00
)

// ValType is a core WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// FuncType is a core function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported host function.
type Import struct {
	Module string
	Name   string
	Type   FuncType
}

// Func is a function defined by the module. Body holds the instruction
// bytes without the trailing end opcode.
type Func struct {
	Export string
	Body   []byte
	Type   FuncType
}

// Module is a module made of imported and defined functions only.
type Module struct {
	Imports []Import
	Funcs   []Func
}

// FuncIndex returns the function index of the i-th defined function.
func (m *Module) FuncIndex(i int) uint32 {
	return uint32(len(m.Imports) + i)
}

// Encode returns the module in WebAssembly binary format.
func (m *Module) Encode() []byte {
	out := make([]byte, 0, 128)
	out = append(out, magic...)
	out = append(out, version...)

	// every import and function gets its own type entry
	types := make([]FuncType, 0, len(m.Imports)+len(m.Funcs))
	for _, imp := range m.Imports {
		types = append(types, imp.Type)
	}
	for _, fn := range m.Funcs {
		types = append(types, fn.Type)
	}

	if len(types) > 0 {
		sec := appendULEB128(nil, uint32(len(types)))
		for _, ft := range types {
			sec = append(sec, funcTypeByte)
			sec = appendValTypes(sec, ft.Params)
			sec = appendValTypes(sec, ft.Results)
		}
		out = appendSection(out, sectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := appendULEB128(nil, uint32(len(m.Imports)))
		for i, imp := range m.Imports {
			sec = appendName(sec, imp.Module)
			sec = appendName(sec, imp.Name)
			sec = append(sec, externKindFunc)
			sec = appendULEB128(sec, uint32(i))
		}
		out = appendSection(out, sectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := appendULEB128(nil, uint32(len(m.Funcs)))
		for i := range m.Funcs {
			sec = appendULEB128(sec, uint32(len(m.Imports)+i))
		}
		out = appendSection(out, sectionFunction, sec)
	}

	var exports int
	for _, fn := range m.Funcs {
		if fn.Export != "" {
			exports++
		}
	}
	if exports > 0 {
		sec := appendULEB128(nil, uint32(exports))
		for i, fn := range m.Funcs {
			if fn.Export == "" {
				continue
			}
			sec = appendName(sec, fn.Export)
			sec = append(sec, externKindFunc)
			sec = appendULEB128(sec, m.FuncIndex(i))
		}
		out = appendSection(out, sectionExport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := appendULEB128(nil, uint32(len(m.Funcs)))
		for _, fn := range m.Funcs {
			body := appendULEB128(nil, 0) // no locals
			body = append(body, fn.Body...)
			body = append(body, opEnd)
			sec = appendULEB128(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, sectionCode, sec)
	}

	return out
}

func appendSection(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = appendULEB128(out, uint32(len(content)))
	return append(out, content...)
}

func appendName(out []byte, name string) []byte {
	out = appendULEB128(out, uint32(len(name)))
	return append(out, name...)
}

func appendValTypes(out []byte, vts []ValType) []byte {
	out = appendULEB128(out, uint32(len(vts)))
	for _, vt := range vts {
		out = append(out, byte(vt))
	}
	return out
}

package guest

const (
	// MethodName is the export the bridge resolves by default.
	MethodName = "bypass"

	// HostModule is the import module the engine provides to guests.
	HostModule = "protector"
)

var bypassType = FuncType{Params: []ValType{I32}, Results: []ValType{I32}}

func single(body Code) *Module {
	return &Module{Funcs: []Func{{Export: MethodName, Type: bypassType, Body: body}}}
}

// Constant answers v for every descriptor.
func Constant(v int32) *Module {
	return single(Code{}.I32Const(v))
}

// Allow protects every descriptor.
func Allow() *Module { return Constant(1) }

// Deny protects nothing.
func Deny() *Module { return Constant(0) }

// NonNegative answers 1 for fd >= 0 and 0 otherwise.
func NonNegative() *Module {
	return single(Code{}.LocalGet(0).I32Const(0).I32GeS())
}

// AllowList answers 1 only for the listed descriptors.
func AllowList(fds ...int32) *Module {
	code := Code{}.I32Const(0)
	for _, fd := range fds {
		code = code.LocalGet(0).I32Const(fd).I32Eq().I32Or()
	}
	return single(code)
}

// Trap traps on every call.
func Trap() *Module {
	return single(Code{}.Unreachable())
}

// Raise reports a fault with code through the host and then answers result.
func Raise(code, result int32) *Module {
	return &Module{
		Imports: []Import{{
			Module: HostModule,
			Name:   "raise",
			Type:   FuncType{Params: []ValType{I32}},
		}},
		Funcs: []Func{{
			Export: MethodName,
			Type:   bypassType,
			Body:   Code{}.I32Const(code).Call(0).I32Const(result),
		}},
	}
}

// Logged reports each decision through the host log import and answers v.
func Logged(v int32) *Module {
	return &Module{
		Imports: []Import{{
			Module: HostModule,
			Name:   "log",
			Type:   FuncType{Params: []ValType{I32, I32}},
		}},
		Funcs: []Func{{
			Export: MethodName,
			Type:   bypassType,
			Body:   Code{}.LocalGet(0).I32Const(v).Call(0).I32Const(v),
		}},
	}
}

// WrongSignature exports bypass with an i64 signature.
func WrongSignature() *Module {
	return &Module{Funcs: []Func{{
		Export: MethodName,
		Type:   FuncType{Params: []ValType{I64}, Results: []ValType{I64}},
		Body:   Code{}.LocalGet(0),
	}}}
}

// Missing exports a correctly typed function under another name.
func Missing() *Module {
	return &Module{Funcs: []Func{{
		Export: "protect",
		Type:   bypassType,
		Body:   Code{}.I32Const(1),
	}}}
}

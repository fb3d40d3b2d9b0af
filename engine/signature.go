package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/protect-bridge/errors"
)

// DefaultSignature is the WIT type of the protector decision function.
const DefaultSignature = "func(fd: s32) -> s32"

var funcPattern = regexp.MustCompile(`^func\s*\(([^)]*)\)(?:\s*->\s*(.+))?$`)

// Signature is a WIT function type lowered to core wasm value types.
type Signature struct {
	Text    string
	Params  []api.ValueType
	Results []api.ValueType
}

// ParseSignature parses a WIT function type such as "func(fd: s32) -> s32".
// Only scalar parameter and result types are accepted.
func ParseSignature(text string) (*Signature, error) {
	text = strings.TrimSpace(text)
	match := funcPattern.FindStringSubmatch(text)
	if match == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, fmt.Sprintf("not a function type: %q", text))
	}

	sig := &Signature{Text: text}

	for _, p := range splitParams(match[1]) {
		typStr := p
		if idx := strings.LastIndex(p, ":"); idx != -1 {
			typStr = strings.TrimSpace(p[idx+1:])
		}
		flat, err := lowerScalar(typStr)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidData, err, "parse param type "+typStr)
		}
		sig.Params = append(sig.Params, flat)
	}

	resultStr := strings.TrimSpace(match[2])
	if resultStr != "" && resultStr != "()" {
		parts := []string{resultStr}
		if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
			parts = splitParams(resultStr[1 : len(resultStr)-1])
		}
		for _, part := range parts {
			flat, err := lowerScalar(part)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidData, err, "parse result type "+part)
			}
			sig.Results = append(sig.Results, flat)
		}
	}

	return sig, nil
}

// Matches reports whether def has exactly the lowered parameter and result types.
func (s *Signature) Matches(def api.FunctionDefinition) bool {
	return equalTypes(s.Params, def.ParamTypes()) && equalTypes(s.Results, def.ResultTypes())
}

// Core formats the lowered type, for example "(i32) -> (i32)".
func (s *Signature) Core() string {
	return formatCore(s.Params, s.Results)
}

func (s *Signature) String() string {
	return s.Text
}

func lowerScalar(s string) (api.ValueType, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, fmt.Errorf("type %q is not a scalar", s)
}

// splitParams splits a parameter list, handling nested parens.
func splitParams(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch {
		case ch == '(' || ch == '<':
			depth++
		case ch == ')' || ch == '>':
			depth--
		case ch == ',' && depth == 0:
			if str := strings.TrimSpace(current.String()); str != "" {
				result = append(result, str)
			}
			current.Reset()
			continue
		}
		current.WriteRune(ch)
	}

	if str := strings.TrimSpace(current.String()); str != "" {
		result = append(result, str)
	}
	return result
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatCore(params, results []api.ValueType) string {
	var b strings.Builder
	writeTypes(&b, params)
	b.WriteString(" -> ")
	writeTypes(&b, results)
	return b.String()
}

func writeTypes(b *strings.Builder, types []api.ValueType) {
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
	b.WriteByte(')')
}

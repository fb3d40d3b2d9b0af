package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wippyai/protect-bridge/guest"
)

const policyHelp = "allow, deny, nonneg, trap, const:N, raise:CODE, list:FD,FD..."

// parsePolicy builds a built-in guest from a policy name.
func parsePolicy(s string) (*guest.Module, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	switch name {
	case "allow":
		return guest.Allow(), nil
	case "deny":
		return guest.Deny(), nil
	case "nonneg":
		return guest.NonNegative(), nil
	case "trap":
		return guest.Trap(), nil
	case "const":
		v, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("policy const: %w", err)
		}
		return guest.Constant(int32(v)), nil
	case "raise":
		code := int64(1)
		if arg != "" {
			var err error
			if code, err = strconv.ParseInt(arg, 10, 32); err != nil {
				return nil, fmt.Errorf("policy raise: %w", err)
			}
		}
		return guest.Raise(int32(code), 1), nil
	case "list":
		var fds []int32
		for _, part := range strings.Split(arg, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			fd, err := strconv.ParseInt(part, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("policy list: %w", err)
			}
			fds = append(fds, int32(fd))
		}
		return guest.AllowList(fds...), nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want %s)", s, policyHelp)
	}
}

// guestBytes returns the module file contents if path is set, otherwise the
// encoded built-in policy.
func guestBytes(policy, path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read module: %w", err)
		}
		return data, nil
	}
	m, err := parsePolicy(policy)
	if err != nil {
		return nil, err
	}
	return m.Encode(), nil
}

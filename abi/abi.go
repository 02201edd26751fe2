// Package abi describes the callable surface of a contract.
package abi

import (
	"encoding/json"
	"strings"

	"github.com/govm-net/hellokv/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ABI represents the interface of a contract
type ABI struct {
	Contract  string     `json:"contract"`
	Functions []Function `json:"functions"`
}

// Function represents one method of the contract
type Function struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Access      string      `json:"access"`
	Mutates     bool        `json:"mutates"`
	Payable     bool        `json:"payable"`
	Inputs      []Parameter `json:"inputs,omitempty"`
	Output      string      `json:"output,omitempty"`
}

// Parameter represents a function argument
type Parameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
}

// Access levels
const (
	AccessAnyone = "anyone"
	AccessOnce   = "anyone, once"
	AccessOwner  = "owner only"
)

// FromContract builds the ABI of c in method table order
func FromContract(c core.Contract) *ABI {
	out := &ABI{Contract: c.Name, Functions: make([]Function, 0, len(c.Methods))}
	for _, m := range c.Methods {
		fn := Function{
			Name:        m.Name,
			DisplayName: DisplayName(m.Name),
			Access:      access(m),
			Mutates:     m.Mutates,
			Payable:     m.Payable,
			Output:      m.Output,
		}
		for _, p := range m.Inputs {
			fn.Inputs = append(fn.Inputs, Parameter{Name: p.Name, Type: p.Type, Optional: p.Optional})
		}
		out.Functions = append(out.Functions, fn)
	}
	return out
}

// Function looks up a function by its method name
func (a *ABI) Function(name string) (Function, bool) {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}

// JSON returns the indented JSON form
func (a *ABI) JSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// DisplayName turns a snake_case method name into CamelCase, e.g. set_data -> SetData
func DisplayName(method string) string {
	caser := cases.Title(language.English)
	parts := strings.Split(method, "_")
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return strings.Join(parts, "")
}

func access(m core.Method) string {
	switch {
	case m.Init:
		return AccessOnce
	case m.OwnerOnly:
		return AccessOwner
	default:
		return AccessAnyone
	}
}

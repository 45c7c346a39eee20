/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package diag implements the driver's single error-reporting primitive: a
// typed code, the offending syntax element, a message, and a caret-style
// source rendering. Every fallible pass in the driver calls Report, which
// never returns — it aborts the current ProcessFile/ProcessDescription call
// by panicking with a *Error that the top-level entry point recovers.
package diag

import (
	"fmt"
	"strings"

	"github.com/bittoy/platformdesc/internal/ast"
)

// Code is the stable numeric error kind. Wording of Message is not
// contractual; Code is.
type Code int

const (
	SyntaxError Code = iota + 1
	UsingFileNotFound
	RecurringUsing
	EmptyEntry
	TypeNotSpecifiedInFirstVariableUse
	VariableAlreadyDeclared
	TypeNotResolved
	AliasWithoutRegistration
	AliasWithNoneRegistration
	MissingReference
	NoUsableRegisterInterface
	AmbiguousRegistrationPointType
	AmbiguousRegistree
	NoCtorForRegistrationPoint
	AmbiguousCtorForRegistrationPoint
	CtorAttributesInNonCreatingEntry
	PropertyDoesNotExist
	PropertyNotWritable
	TypeMismatch
	EnumMismatch
	PropertyOrCtorNameUsedMoreThanOnce
	MoreThanOneInitAttribute
	InitSectionValidationError
	CreationOrderCycle
	RegistrationOrderCycle
	IrqDestinationDoesNotExist
	NotLocalGpioReceiver
	IrqSourceDoesNotExist
	AmbiguousDefaultIrqSource
	IrqSourceIsNotNumberedGpioOutput
	IrqDestinationIsNotIrqReceiver
	WrongIrqArity
	IrqSourceUsedMoreThanOnce
	IrqDestinationUsedMoreThanOnce
	UninitializedSourceIrqObject
	IrqSourcePinDoesNotExist
	ConstructionException
	PropertySettingException
	RegistrationException
	CastException
	NameSettingException
	InternalError
	NoCtor
	AmbiguousCtor
)

var names = map[Code]string{
	SyntaxError:                         "SyntaxError",
	UsingFileNotFound:                   "UsingFileNotFound",
	RecurringUsing:                      "RecurringUsing",
	EmptyEntry:                          "EmptyEntry",
	TypeNotSpecifiedInFirstVariableUse:  "TypeNotSpecifiedInFirstVariableUse",
	VariableAlreadyDeclared:             "VariableAlreadyDeclared",
	TypeNotResolved:                     "TypeNotResolved",
	AliasWithoutRegistration:            "AliasWithoutRegistration",
	AliasWithNoneRegistration:           "AliasWithNoneRegistration",
	MissingReference:                    "MissingReference",
	NoUsableRegisterInterface:           "NoUsableRegisterInterface",
	AmbiguousRegistrationPointType:      "AmbiguousRegistrationPointType",
	AmbiguousRegistree:                  "AmbiguousRegistree",
	NoCtorForRegistrationPoint:          "NoCtorForRegistrationPoint",
	AmbiguousCtorForRegistrationPoint:   "AmbiguousCtorForRegistrationPoint",
	CtorAttributesInNonCreatingEntry:    "CtorAttributesInNonCreatingEntry",
	PropertyDoesNotExist:                "PropertyDoesNotExist",
	PropertyNotWritable:                 "PropertyNotWritable",
	TypeMismatch:                        "TypeMismatch",
	EnumMismatch:                        "EnumMismatch",
	PropertyOrCtorNameUsedMoreThanOnce:  "PropertyOrCtorNameUsedMoreThanOnce",
	MoreThanOneInitAttribute:            "MoreThanOneInitAttribute",
	InitSectionValidationError:          "InitSectionValidationError",
	CreationOrderCycle:                  "CreationOrderCycle",
	RegistrationOrderCycle:              "RegistrationOrderCycle",
	IrqDestinationDoesNotExist:          "IrqDestinationDoesNotExist",
	NotLocalGpioReceiver:                "NotLocalGpioReceiver",
	IrqSourceDoesNotExist:               "IrqSourceDoesNotExist",
	AmbiguousDefaultIrqSource:           "AmbiguousDefaultIrqSource",
	IrqSourceIsNotNumberedGpioOutput:    "IrqSourceIsNotNumberedGpioOutput",
	IrqDestinationIsNotIrqReceiver:      "IrqDestinationIsNotIrqReceiver",
	WrongIrqArity:                       "WrongIrqArity",
	IrqSourceUsedMoreThanOnce:           "IrqSourceUsedMoreThanOnce",
	IrqDestinationUsedMoreThanOnce:      "IrqDestinationUsedMoreThanOnce",
	UninitializedSourceIrqObject:        "UninitializedSourceIrqObject",
	IrqSourcePinDoesNotExist:            "IrqSourcePinDoesNotExist",
	ConstructionException:               "ConstructionException",
	PropertySettingException:            "PropertySettingException",
	RegistrationException:               "RegistrationException",
	CastException:                       "CastException",
	NameSettingException:                "NameSettingException",
	InternalError:                       "InternalError",
	NoCtor:                              "NoCtor",
	AmbiguousCtor:                       "AmbiguousCtor",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the single rich diagnostic type the driver ever surfaces to
// callers. It carries enough information to render the "Error E<NN>:"
// format described by the platform description grammar.
type Error struct {
	Code       Code
	Pos        ast.Position
	FileName   string
	Message    string
	LongUnderline bool
	Inner      error
}

func (e *Error) Error() string {
	return e.Format(nil)
}

func (e *Error) Unwrap() error { return e.Inner }

// Format renders the full diagnostic: "Error E<NN>:", the message, the
// file:line:column, the quoted source line (if sourceLines is non-nil and
// long enough) and a caret run under the offending element.
func (e *Error) Format(sourceLines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error E%02d: %s\n", int(e.Code), e.Message)
	fmt.Fprintf(&b, "  at %s:%d:%d\n", e.FileName, e.Pos.Line, e.Pos.Column)
	if sourceLines != nil && e.Pos.Line >= 1 && e.Pos.Line <= len(sourceLines) {
		line := sourceLines[e.Pos.Line-1]
		b.WriteString("    " + line + "\n")
		underline := e.Pos.Length
		if underline < 1 {
			underline = 1
		}
		if !e.LongUnderline {
			underline = 1
		}
		col := e.Pos.Column
		if col < 1 {
			col = 1
		}
		b.WriteString("    " + strings.Repeat(" ", col-1) + strings.Repeat("^", underline) + "\n")
	}
	return b.String()
}

// reportPanic wraps an *Error so Recover (deferred at each phase boundary:
// include, validate, build) can distinguish it from any other panic (which is rethrown untouched,
// matching "non-recoverable host exceptions are rethrown untouched").
type reportPanic struct {
	err *Error
}

// Report records a diagnostic and aborts the current pass by panicking; it
// never returns normally and has no return value.
func Report(code Code, node interface{ ValPos() ast.Position }, fileName string, longUnderline bool, format string, args ...any) {
	ReportAt(code, node.ValPos(), fileName, longUnderline, format, args...)
}

// ReportAt is Report for callers that only have a bare Position (e.g. an
// ast.Attribute, which exposes AttrPos instead of ValPos).
func ReportAt(code Code, pos ast.Position, fileName string, longUnderline bool, format string, args ...any) {
	panic(reportPanic{err: &Error{
		Code:          code,
		Pos:           pos,
		FileName:      fileName,
		Message:       fmt.Sprintf(format, args...),
		LongUnderline: longUnderline,
	}})
}

// Internal reports an InternalError for an invariant the driver believes
// can never be violated. It embeds the calling site so the message still
// identifies where the "should not reach here" was reached.
func Internal(pos ast.Position, fileName string, callSite string) {
	ReportAt(InternalError, pos, fileName, false, "internal error: should not reach here (%s)", callSite)
}

// Recover converts a reportPanic recovered via recover() back into an
// *Error, or re-panics anything else untouched. Call this exactly once,
// wrapped in its own deferred closure so recover() runs during the panic
// unwind rather than when the defer statement is evaluated:
//
//	defer func() { diag.Recover(recover(), &err) }()
func Recover(recovered any, out *error) {
	if recovered == nil {
		return
	}
	if rp, ok := recovered.(reportPanic); ok {
		*out = rp.err
		return
	}
	panic(recovered)
}

// Wrap converts a host-thrown error into a diagnostic of the given code
// (the four host-exception kinds ConstructionException,
// PropertySettingException, RegistrationException and NameSettingException,
// and also the cast, IRQ-wiring and init-execution codes the builder uses),
// flattening the original error chain into the message text as required by
// §7.
func Wrap(code Code, pos ast.Position, fileName string, context string, cause error) {
	ReportAt(code, pos, fileName, true, "%s: %s", context, flatten(cause))
}

func flatten(err error) string {
	var parts []string
	for err != nil {
		parts = append(parts, err.Error())
		err = errorsUnwrap(err)
	}
	return strings.Join(parts, " -> ")
}

func errorsUnwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

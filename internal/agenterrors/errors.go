// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package agenterrors defines the error taxonomy shared by every
// component of the core: a small closed set of kinds instead of a
// hierarchy of custom error types.
package agenterrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error without dictating its message.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindParse
	KindDB
	KindNetwork
	KindAuth
	KindCodec
	KindProtocol
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IoError"
	case KindParse:
		return "ParseError"
	case KindDB:
		return "DbError"
	case KindNetwork:
		return "NetworkError"
	case KindAuth:
		return "AuthError"
	case KindCodec:
		return "CodecError"
	case KindProtocol:
		return "ProtocolError"
	case KindInvariant:
		return "InvariantError"
	default:
		return "UnknownError"
	}
}

// AuthSub further classifies KindAuth errors, per spec.md §7.
type AuthSub int

const (
	AuthSubNone AuthSub = iota
	AuthSubState
	AuthSubTimeout
	AuthSubExchange
	AuthSubBrowser
)

func (s AuthSub) String() string {
	switch s {
	case AuthSubState:
		return "State"
	case AuthSubTimeout:
		return "Timeout"
	case AuthSubExchange:
		return "Exchange"
	case AuthSubBrowser:
		return "Browser"
	default:
		return ""
	}
}

// Error is the one error type every component returns, wrapping an
// underlying cause with a Kind so callers can branch on it with
// errors.As without a constellation of sentinel or custom types.
type Error struct {
	Kind    Kind
	Sub     AuthSub
	Op      string // the operation that failed, e.g. "ps2card.Parse"
	Message string // server-provided or human message, if any
	Err     error
}

func (e *Error) Error() string {
	if e.Sub != AuthSubNone {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s(%s): %v", e.Op, e.Kind, e.Sub, e.Err)
		}
		return fmt.Sprintf("%s: %s(%s): %s", e.Op, e.Kind, e.Sub, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and the operation name that observed it.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Newf builds an Error from a formatted message with no underlying cause.
func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewAuth wraps err (or message) with an AuthSub classification.
func NewAuth(op string, sub AuthSub, message string, err error) *Error {
	return &Error{Op: op, Kind: KindAuth, Sub: sub, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

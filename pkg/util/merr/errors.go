// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Category 是错误码所属的大类，调用方可以据此分支处理，而不依赖错误文本。
type Category int32

const (
	CategoryUnknown Category = iota
	CategoryUsage
	CategoryStructural
	CategorySchema
	CategoryPolymorphism
	CategoryNumeric
	CategoryEncoding
	CategoryParameter
)

var categoryName = map[Category]string{
	CategoryUnknown:      "unknown",
	CategoryUsage:        "usage",
	CategoryStructural:   "structural",
	CategorySchema:       "schema",
	CategoryPolymorphism: "polymorphism",
	CategoryNumeric:      "numeric",
	CategoryEncoding:     "encoding",
	CategoryParameter:    "parameter",
}

func (c Category) String() string {
	if name, ok := categoryName[c]; ok {
		return name
	}
	return categoryName[CategoryUnknown]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Usage related: 协议被错误使用（begin/end 不匹配、同一元素写两次等），属于编程错误。
	ErrProtocolMisuse = newSerialError("serial protocol misuse", 100, WithErrorType(SystemError))
	ErrDepthExceeded  = newSerialError("nesting depth exceeded", 101)

	// Structural related: 输入的形状或字面量不合法。
	ErrMalformedInput  = newSerialError("malformed input", 200)
	ErrUnexpectedToken = newSerialError("unexpected token", 201)
	ErrUnexpectedEOF   = newSerialError("unexpected end of input", 202)

	// Schema related
	ErrMissingField     = newSerialError("missing required field", 300)
	ErrDuplicateElement = newSerialError("duplicate element", 301)
	ErrUnknownKey       = newSerialError("unknown key", 302)

	// Polymorphism related
	ErrMissingDiscriminator  = newSerialError("missing class discriminator", 400)
	ErrUnknownDiscriminator  = newSerialError("unknown class discriminator", 401)
	ErrUnregisteredSubclass  = newSerialError("subclass not registered for polymorphic serialization", 402, WithErrorType(SystemError))
	ErrDiscriminatorConflict = newSerialError("class discriminator conflicts with a property name", 403, WithErrorType(SystemError))
	ErrPolymorphicPayload    = newSerialError("malformed polymorphic payload", 404)

	// Numeric related
	ErrNumericOverflow = newSerialError("numeric value out of range", 500)
	ErrSpecialFloat    = newSerialError("special floating-point value not allowed", 501)

	// Encoding / IO related
	ErrEncodeFailed       = newSerialError("encode failed", 600, WithErrorType(SystemError))
	ErrIoFailed           = newSerialError("IO failed", 601, WithErrorType(SystemError))
	ErrUnsupportedShape   = newSerialError("shape not supported by format", 602, WithErrorType(SystemError))
	ErrIncompatibleStream = newSerialError("incompatible stream version", 603)

	// Parameter related
	ErrParameterInvalid = newSerialError("invalid parameter", 1100, WithErrorType(SystemError))

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to serialError
	errUnexpected = newSerialError("unexpected error", (1<<16)-1, WithErrorType(SystemError))
)

type errorOption func(*serialError)

func WithDetail(detail string) errorOption {
	return func(err *serialError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *serialError) {
		err.errType = etype
	}
}

type serialError struct {
	msg     string
	detail  string
	errCode int32
	errType ErrorType
}

// 序列化错误默认视为输入错误，系统类错误显式标记。
func newSerialError(msg string, code int32, options ...errorOption) serialError {
	err := serialError{
		msg:     msg,
		detail:  msg,
		errCode: code,
		errType: InputError,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e serialError) code() int32 {
	return e.errCode
}

func (e serialError) category() Category {
	switch e.errCode / 100 {
	case 1:
		return CategoryUsage
	case 2:
		return CategoryStructural
	case 3:
		return CategorySchema
	case 4:
		return CategoryPolymorphism
	case 5:
		return CategoryNumeric
	case 6:
		return CategoryEncoding
	case 11:
		return CategoryParameter
	default:
		return CategoryUnknown
	}
}

func (e serialError) Error() string {
	return e.msg
}

func (e serialError) Detail() string {
	return e.detail
}

func (e serialError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(serialError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	var specificErr serialError
	if errors.As(err, &specificErr) {
		return specificErr.code()
	}
	if errors.Is(err, context.Canceled) {
		return CanceledCode
	} else if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutCode
	}
	return errUnexpected.code()
}

// CategoryOf 返回错误所属的大类；非本包构造的错误返回 CategoryUnknown。
func CategoryOf(err error) Category {
	var specificErr serialError
	if errors.As(err, &specificErr) {
		return specificErr.category()
	}
	return CategoryUnknown
}

// IsUsageError 判断错误是否为协议误用（编程错误），而非数据错误。
func IsUsageError(err error) bool {
	return CategoryOf(err) == CategoryUsage
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	var specificErr serialError
	if errors.As(err, &specificErr) {
		return specificErr.errType
	}
	return SystemError
}

// Usage 相关错误封装。
func WrapErrProtocolMisuse(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrProtocolMisuse, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDepthExceeded(depth, limit int) error {
	return wrapFields(ErrDepthExceeded, bound("depth", depth, 0, limit))
}

// Structural 相关错误封装。
func WrapErrMalformedInput(path string, offset int64, reason string) error {
	return wrapFieldsWithDesc(ErrMalformedInput, reason, value("path", path), value("offset", offset))
}

func WrapErrUnexpectedToken(path string, offset int64, expected, actual string) error {
	return wrapFieldsWithDesc(ErrUnexpectedToken,
		fmt.Sprintf("expected %s, got %s", expected, actual),
		value("path", path), value("offset", offset))
}

func WrapErrUnexpectedEOF(path string, offset int64, msg ...string) error {
	err := wrapFields(ErrUnexpectedEOF, value("path", path), value("offset", offset))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Schema 相关错误封装。
func WrapErrMissingField(serialName string, fields ...string) error {
	return wrapFields(ErrMissingField, value("type", serialName), value("fields", strings.Join(fields, ",")))
}

func WrapErrDuplicateElement(serialName string, element string) error {
	return wrapFields(ErrDuplicateElement, value("type", serialName), value("element", element))
}

func WrapErrUnknownKey(path string, key string, msg ...string) error {
	err := wrapFields(ErrUnknownKey, value("path", path), value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Polymorphism 相关错误封装。
func WrapErrMissingDiscriminator(baseName string, key string) error {
	return wrapFields(ErrMissingDiscriminator, value("base", baseName), value("key", key))
}

func WrapErrUnknownDiscriminator(baseName string, discriminator string) error {
	return wrapFields(ErrUnknownDiscriminator, value("base", baseName), value("discriminator", discriminator))
}

func WrapErrUnregisteredSubclass(baseName string, concrete any) error {
	return wrapFields(ErrUnregisteredSubclass, value("base", baseName), value("concrete", fmt.Sprintf("%T", concrete)))
}

func WrapErrDiscriminatorConflict(serialName string, key string) error {
	return wrapFields(ErrDiscriminatorConflict, value("type", serialName), value("key", key))
}

func WrapErrPolymorphicPayload(discriminator string, err error) error {
	return Combine(err, wrapFields(ErrPolymorphicPayload, value("discriminator", discriminator)))
}

// Numeric 相关错误封装。
func WrapErrNumericOverflow[T any](path string, literal string, lower, upper T) error {
	return wrapFields(ErrNumericOverflow, value("path", path), bound("value", literal, lower, upper))
}

func WrapErrSpecialFloat(path string, v float64) error {
	return wrapFieldsWithDesc(ErrSpecialFloat,
		"use allowSpecialFloatingPointValues to permit it",
		value("path", path), value("value", v))
}

// Encoding 相关错误封装。
func WrapErrEncodeFailed(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrEncodeFailed, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIoFailed(err error) error {
	if err == nil {
		return nil
	}
	return Combine(err, ErrIoFailed)
}

func WrapErrUnsupportedShape(format string, serialName string, reason string) error {
	return wrapFieldsWithDesc(ErrUnsupportedShape, reason, value("format", format), value("type", serialName))
}

func WrapErrIncompatibleStream(actual, expected string) error {
	return wrapFields(ErrIncompatibleStream, value("actual", actual), value("expected", expected))
}

// Parameter 相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmtMsg string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtMsg, args...)
}

func wrapFields(err serialError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serialError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

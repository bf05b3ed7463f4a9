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
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrMissingField("Point", "x")
	wrapped := errors.Wrap(err, "failed to decode point")
	s.ErrorIs(wrapped, ErrMissingField)
	s.Equal(Code(ErrMissingField), Code(wrapped))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errors.New("boom")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newSerialError("new error", ErrMissingField.errCode)
	s.True(sameCodeErr.Is(ErrMissingField))
}

func (s *ErrSuite) TestCategory() {
	s.Equal(CategoryUsage, CategoryOf(WrapErrProtocolMisuse("end without begin")))
	s.Equal(CategoryStructural, CategoryOf(WrapErrUnexpectedToken("$", 0, "'{'", "'['")))
	s.Equal(CategorySchema, CategoryOf(WrapErrUnknownKey("$", "extra")))
	s.Equal(CategoryPolymorphism, CategoryOf(WrapErrUnknownDiscriminator("Shape", "c")))
	s.Equal(CategoryNumeric, CategoryOf(WrapErrNumericOverflow("$.a", "300", -128, 127)))
	s.Equal(CategoryEncoding, CategoryOf(WrapErrIoFailed(errors.New("disk full"))))
	s.Equal(CategoryUnknown, CategoryOf(errors.New("plain")))
	s.True(IsUsageError(errors.Wrap(WrapErrProtocolMisuse("x"), "ctx")))
	s.False(IsUsageError(WrapErrMalformedInput("$", 1, "bad escape")))
	s.Equal("schema", CategorySchema.String())
}

func (s *ErrSuite) TestWrap() {
	// Usage 相关错误。
	s.ErrorIs(WrapErrProtocolMisuse("index written twice", "encode"), ErrProtocolMisuse)
	s.ErrorIs(WrapErrDepthExceeded(65, 64), ErrDepthExceeded)

	// Structural 相关错误。
	s.ErrorIs(WrapErrMalformedInput("$.a", 3, "bad escape"), ErrMalformedInput)
	s.ErrorIs(WrapErrUnexpectedToken("$.a", 3, "number", "string"), ErrUnexpectedToken)
	s.ErrorIs(WrapErrUnexpectedEOF("$", 10), ErrUnexpectedEOF)

	// Schema 相关错误。
	s.ErrorIs(WrapErrMissingField("Point", "x", "y"), ErrMissingField)
	s.ErrorIs(WrapErrDuplicateElement("Point", "x"), ErrDuplicateElement)
	s.ErrorIs(WrapErrUnknownKey("$", "extra"), ErrUnknownKey)

	// Polymorphism 相关错误。
	s.ErrorIs(WrapErrMissingDiscriminator("Shape", "type"), ErrMissingDiscriminator)
	s.ErrorIs(WrapErrUnknownDiscriminator("Shape", "c"), ErrUnknownDiscriminator)
	s.ErrorIs(WrapErrUnregisteredSubclass("Shape", 1), ErrUnregisteredSubclass)
	s.ErrorIs(WrapErrDiscriminatorConflict("Circle", "type"), ErrDiscriminatorConflict)

	// Numeric 相关错误。
	s.ErrorIs(WrapErrNumericOverflow("$", "1e400", 0, 1), ErrNumericOverflow)
	s.ErrorIs(WrapErrSpecialFloat("$", 0), ErrSpecialFloat)

	// Parameter 相关错误。
	s.ErrorIs(WrapErrParameterInvalid("json", "yaml"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("indent %q", "x"), ErrParameterInvalid)
}

func (s *ErrSuite) TestWrapMessage() {
	err := WrapErrMissingField("Point", "x")
	s.Equal("missing required field[type=Point][fields=x]", err.Error())

	err = WrapErrNumericOverflow("$.b", "300", -128, 127)
	s.Contains(err.Error(), "300 out of range -128 <= value <= 127")
}

func (s *ErrSuite) TestPolymorphicPayloadKeepsCause() {
	cause := WrapErrUnexpectedToken("$.r", 5, "number", "string")
	err := WrapErrPolymorphicPayload("circle", cause)
	s.ErrorIs(err, ErrPolymorphicPayload)
	s.ErrorIs(err, ErrUnexpectedToken)
	s.Equal(Code(ErrPolymorphicPayload), Code(err))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
	s.Nil(Combine(nil, nil))
}

func (s *ErrSuite) TestErrorType() {
	s.Equal(InputError, GetErrorType(WrapErrUnknownKey("$", "k")))
	s.Equal(SystemError, GetErrorType(WrapErrProtocolMisuse("x")))
	s.Equal(SystemError, GetErrorType(errors.New("plain")))
	s.Equal("input_error", InputError.String())
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}

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

package json

import (
	gojson "encoding/json"

	"github.com/bytedance/sonic"
	jsoniter "github.com/json-iterator/go"
)

var (
	json = sonic.ConfigStd
	// Marshal 与 encoding/json 行为一致（map 键有序），底层使用 sonic。
	Marshal       = json.Marshal
	Unmarshal     = json.Unmarshal
	MarshalIndent = json.MarshalIndent
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid

	numberConfig = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()
)

type (
	Number     = gojson.Number
	RawMessage = gojson.RawMessage
)

// UnmarshalUseNumber 解析 data，数字保留为 Number 而不是 float64，避免大整数丢失精度。
func UnmarshalUseNumber(data []byte, v any) error {
	return numberConfig.Unmarshal(data, v)
}

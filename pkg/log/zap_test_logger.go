// Copyright 2021 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// 说明：testWriter 参考了 go.uber.org/zap/zaptest 中 testingWriter 的做法（MIT 许可）。

package log

import (
	"bytes"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// testWriter 把每条日志按行转发给 t.Logf，fail 为 true 时同时将测试标记为失败。
type testWriter struct {
	t    zaptest.TestingT
	fail bool
}

func (w testWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		w.t.Logf("%s", line)
	}
	if w.fail {
		w.t.Fail()
	}
	return len(p), nil
}

func (testWriter) Sync() error {
	return nil
}

// InitTestLogger 创建一个把日志写入测试输出的 logger。
// zap 内部错误同样写入测试输出，并使测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	opts = append([]zap.Option{zap.ErrorOutput(testWriter{t: t, fail: true})}, opts...)
	return InitLoggerWithWriteSyncer(cfg, zapcore.AddSync(testWriter{t: t}), opts...)
}

// NewTestLogger 返回一个写入测试输出的 MLogger，适合绑定到被测组件上。
func NewTestLogger(t zaptest.TestingT, level string) *MLogger {
	lg, _, err := InitTestLogger(t, &Config{Level: level, DisableStacktrace: true})
	if err != nil {
		t.Errorf("init test logger: %v", err)
		return With()
	}
	return &MLogger{Logger: lg}
}

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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const (
	// serialkitNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	serialkitNamespace = "serialkit"

	formatLabelName   = "format"
	opLabelName       = "op"
	categoryLabelName = "category"

	OpEncode = "encode"
	OpDecode = "decode"
)

var (
	// sizeBuckets 为单次会话数据大小的桶划分，单位为字节。
	// 实际桶分布为：[64 256 1024 4096 16384 65536 262144 1.048576e+06 4.194304e+06 1.6777216e+07]
	sizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serialkitNamespace,
			Name:      "sessions_total",
			Help:      "number of encode/decode sessions",
		}, []string{formatLabelName, opLabelName})

	SessionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: serialkitNamespace,
			Name:      "session_errors_total",
			Help:      "number of failed sessions by error category",
		}, []string{formatLabelName, opLabelName, categoryLabelName})

	SessionBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: serialkitNamespace,
			Name:      "session_bytes",
			Help:      "bytes produced or consumed by one session",
			Buckets:   sizeBuckets,
		}, []string{formatLabelName, opLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 将 serialkit 的全部指标注册到 r，只在第一次调用时生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		metricRegisterer = r
		r.MustRegister(SessionsTotal)
		r.MustRegister(SessionErrorsTotal)
		r.MustRegister(SessionBytes)
	})
}

// ObserveSession 记录一次会话：总数、字节数，失败时按错误大类计数。
func ObserveSession(format, op string, bytes int64, err error) {
	SessionsTotal.WithLabelValues(format, op).Inc()
	if bytes >= 0 {
		SessionBytes.WithLabelValues(format, op).Observe(float64(bytes))
	}
	if err != nil {
		SessionErrorsTotal.WithLabelValues(format, op, merr.CategoryOf(err).String()).Inc()
	}
}

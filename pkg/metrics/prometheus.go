/*
 * Copyright 2025 Carver Automation Corporation.
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

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faultradar"

// PrometheusRecorder exports firmware distribution counters.
type PrometheusRecorder struct {
	checkIns   *prometheus.CounterVec
	uploads    prometheus.Counter
	rollbacks  prometheus.Counter
	forceFlags prometheus.Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the OTA counters with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ota",
			Name:      "checkins_total",
			Help:      "Device check-ins by outcome.",
		}, []string{"result"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ota",
			Name:      "uploads_total",
			Help:      "Firmware payloads admitted to a device manifest.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ota",
			Name:      "rollbacks_total",
			Help:      "Successful rollbacks of the active firmware.",
		}),
		forceFlags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ota",
			Name:      "force_flags_total",
			Help:      "Force-update flags raised.",
		}),
	}

	reg.MustRegister(r.checkIns, r.uploads, r.rollbacks, r.forceFlags)

	return r
}

func (r *PrometheusRecorder) CheckIn(result string) {
	r.checkIns.WithLabelValues(result).Inc()
}

func (r *PrometheusRecorder) Upload() {
	r.uploads.Inc()
}

func (r *PrometheusRecorder) Rollback() {
	r.rollbacks.Inc()
}

func (r *PrometheusRecorder) ForceFlags(count int) {
	r.forceFlags.Add(float64(count))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

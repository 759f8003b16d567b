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
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.CheckIn(CheckInUpToDate)
	r.CheckIn(CheckInUpToDate)
	r.CheckIn(CheckInForced)
	r.Upload()
	r.Rollback()
	r.ForceFlags(3)

	assert.InDelta(t, 2, testutil.ToFloat64(r.checkIns.WithLabelValues(CheckInUpToDate)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.checkIns.WithLabelValues(CheckInForced)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.uploads), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.rollbacks), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(r.forceFlags), 0)
}

func TestHandlerExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusRecorder(reg).Upload()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "faultradar_ota_uploads_total 1")
}

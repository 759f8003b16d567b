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

// Check-in outcomes recorded by Recorder.CheckIn.
const (
	CheckInUpToDate      = "up_to_date"
	CheckInUpdate        = "update"
	CheckInForced        = "forced"
	CheckInUnprovisioned = "unprovisioned"
	CheckInDegraded      = "degraded"
)

// Recorder receives counters for firmware distribution events.
type Recorder interface {
	CheckIn(result string)
	Upload()
	Rollback()
	ForceFlags(count int)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) CheckIn(string) {}
func (NopRecorder) Upload()        {}
func (NopRecorder) Rollback()      {}
func (NopRecorder) ForceFlags(int) {}

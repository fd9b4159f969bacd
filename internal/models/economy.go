/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// EconomyParams is the optional YAML parameter file. Absent sections keep
// the built-in defaults.
type EconomyParams struct {
	AbuseWeights  map[string]float64   `yaml:"abuse_weights"`
	Damping       *DampingParams       `yaml:"damping"`
	JusticePolicy *JusticePolicyParams `yaml:"justice_policy"`
	Macro         *MacroContext        `yaml:"macro"`
}

type DampingParams struct {
	Rows     []DampingRow `yaml:"rows"`
	Overflow float64      `yaml:"overflow"`
}

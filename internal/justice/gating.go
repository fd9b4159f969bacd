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

package justice

import "citizen-economy-go/internal/models"

// denied lists the actions each regime forbids. Known regimes absent from the
// map allow everything.
var denied = map[models.Regime]map[models.Action]bool{
	models.RegimeRestricted: {
		models.ActionStartCall: true,
	},
	models.RegimeLockdown: {
		models.ActionSendMessage:   true,
		models.ActionStartCall:     true,
		models.ActionCreateFlirt:   true,
		models.ActionWithdrawFunds: true,
		models.ActionTopupWallet:   true,
		models.ActionAccessAurora:  true,
	},
}

// IsActionAllowed reports whether regime permits action. Unknown regimes and
// unknown actions are denied.
func IsActionAllowed(regime models.Regime, action models.Action) bool {
	if !validRegime(regime) || !validAction(action) {
		return false
	}
	return !denied[regime][action]
}

func validAction(action models.Action) bool {
	for _, a := range models.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func validRegime(regime models.Regime) bool {
	for _, r := range models.Regimes {
		if r == regime {
			return true
		}
	}
	return false
}

// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"

	"github.com/jolks/mcp-toolchat/internal/logging"
)

// PersistAndLogRun saves a run to the store (best-effort) and debug-logs it.
func PersistAndLogRun(store RunStore, run *RunRecord, logger *logging.Logger) {
	if store != nil {
		if err := store.SaveRun(run); err != nil {
			logger.Warnf("Failed to persist run for schedule %s: %v", run.ScheduleID, err)
		}
	}

	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		logger.Warnf("Failed to marshal run for schedule %s: %v", run.ScheduleID, err)
		return
	}
	logger.Debugf("Schedule %s run: %s", run.ScheduleID, string(jsonData))
}

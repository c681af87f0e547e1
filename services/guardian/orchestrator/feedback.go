// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/diagnosis"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// SubmitFeedback records an operator's correction for a past diagnosis
// (spec §4.13's feedback endpoint): it persists the raw correction to the
// Store for audit, and retunes the Diagnostician's confidence for kind via
// diagnosis.RecordFeedback so future diagnoses reflect it.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, agentID string, kind vitals.DiagnosisKind, label vitals.FeedbackLabel) (vitals.DiagnosisKind, float64) {
	f := vitals.Feedback{AgentID: agentID, Kind: kind, Label: label, At: time.Now()}
	if o.Store != nil {
		if err := o.Store.WriteFeedback(ctx, f); err != nil {
			o.logAction(ctx, healActionLog(agentID, "feedback store write failed: "+err.Error()))
		}
	}
	adjustedKind, confidence := diagnosis.RecordFeedback(kind, label)
	o.logAction(ctx, healActionLog(agentID, "feedback recorded: "+string(label)))
	return adjustedKind, confidence
}

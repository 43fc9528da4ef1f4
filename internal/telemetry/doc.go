// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry keeps a local ledger of token usage and estimated cost
// per reply.
//
// # Key Types
//
//   - Tracker: records replies and aggregates them into trends
//   - Record: usage of one reply
//   - Trends: totals per day and per model over a period
//   - Storage: one JSON-lines file per day
//
// # Usage
//
//	tracker, err := telemetry.NewTracker(dir, nil)
//	if err != nil {
//	    return err
//	}
//	err = tracker.Record(conversationID, reply, prices)
//	trends, err := tracker.Trends(7)
//	fmt.Printf("Weekly cost: $%.4f\n", trends.TotalCost)
//
// # Privacy
//
// The ledger is local-only. Message text is never stored, only ids, token
// counts and costs.
package telemetry

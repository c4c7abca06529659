// Package interview defines the shared types used across all voxhire packages.
//
// These types form the lingua franca between the capture pipeline, the agent
// transports, the transcript log, and the persistence layer. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package interview

import (
	"time"

	"github.com/google/uuid"
)

// ID is the platform identifier for a single interview.
type ID string

// Stage identifies where in the interview flow the conversation currently is.
type Stage string

// Interview stages, in their usual order.
const (
	StageIntro              Stage = "intro"
	StageTechnical          Stage = "technical"
	StageBehavioral         Stage = "behavioral"
	StageCandidateQuestions Stage = "candidate_questions"
	StageClosing            Stage = "closing"
)

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageIntro, StageTechnical, StageBehavioral, StageCandidateQuestions, StageClosing:
		return true
	}
	return false
}

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Channel identifies the modality a chat message arrived through.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelText  Channel = "text"
)

// FinalizeReason records why an interview session was finalized.
type FinalizeReason string

const (
	// FinalizeManual means the candidate or interviewer ended the session.
	FinalizeManual FinalizeReason = "manual"

	// FinalizeSystem means the platform ended the session (time limit,
	// shutdown, policy).
	FinalizeSystem FinalizeReason = "system"
)

// ChatMessage is one entry of the interview transcript. Consecutive voice
// fragments from the same sender are merged into a single message before it
// reaches this form.
type ChatMessage struct {
	// ID uniquely identifies the message within the interview.
	ID uuid.UUID

	// Sender is who produced the message.
	Sender Sender

	// Channel is the modality the message arrived through.
	Channel Channel

	// Text is the message content. For voice messages this is the merged
	// transcription.
	Text string

	// Timestamp is the wall-clock time of the latest fragment merged into
	// this message.
	Timestamp time.Time
}

// SnapshotKind distinguishes mid-session transcript persistence from the
// final write at the end of an interview.
type SnapshotKind string

const (
	SnapshotPeriodic SnapshotKind = "snapshot"
	SnapshotFinal    SnapshotKind = "final"
)

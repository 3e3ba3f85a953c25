// Package protocol defines the JSON wire messages for the live attach
// channel and their decoding rules. The channel is message-framed: JSON text
// frames carry typed messages; raw binary frames (PCM audio) are handled by
// the transport and never reach DecodeClientMessage.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client message types.
const (
	TypeJoinSession = "join-session"
	TypeAudioChunk  = "audio-chunk"
	TypePing        = "ping"
)

// Server message types.
const (
	TypeSessionStatus      = "session-status"
	TypeRecordingStatus    = "recording-status"
	TypeTranscription      = "transcription"
	TypeSuggestion         = "suggestion"
	TypeQuestionsUpdated   = "suggested-questions-updated"
	TypeSessionAutoStopped = "session-auto-stopped"
	TypeError              = "error"
	TypePong               = "pong"
)

// Stable error codes for the server `error` message.
const (
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeSessionInactive    = "SESSION_INACTIVE"
	CodeInvalidSession     = "INVALID_SESSION"
	CodeProviderKeyMissing = "PROVIDER_KEY_MISSING"
	CodeTranscriptionError = "TRANSCRIPTION_ERROR"
	CodeJoinError          = "JOIN_ERROR"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientJoinSession attaches the connection to a session. Idempotent:
// re-joining an already-joined session replaces the socket and nothing else.
type ClientJoinSession struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	AttachToken string `json:"attachToken"`
}

// ClientAudioChunk carries one PCM frame, base64-encoded. Clients on binary
// transports send raw frames instead and skip this message entirely.
type ClientAudioChunk struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	AudioData string `json:"audioData"`
}

type ClientPing struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound JSON frame into its typed message.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeJoinSession:
		var msg ClientJoinSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid join-session frame", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badRequest("join-session.sessionId is required", "sessionId")
		}
		return msg, nil
	case TypeAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio-chunk frame", "")
		}
		if strings.TrimSpace(msg.SessionID) == "" {
			return nil, badRequest("audio-chunk.sessionId is required", "sessionId")
		}
		if msg.AudioData == "" {
			return nil, badRequest("audio-chunk.audioData is required", "audioData")
		}
		return msg, nil
	case TypePing:
		var msg ClientPing
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid ping frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// Question is the wire shape of one suggested question. Deleted questions
// are never sent.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Answered   bool   `json:"answered"`
	CreatedAt  string `json:"createdAt"`
	AnsweredAt string `json:"answeredAt,omitempty"`
}

// ServerSessionStatus acknowledges a join.
type ServerSessionStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ServerRecordingStatus reports ingest progress at least every five seconds
// while recording.
type ServerRecordingStatus struct {
	Type                     string  `json:"type"`
	AudioSizeMB              float64 `json:"audioSizeMB"`
	AudioChunks              int     `json:"audioChunks"`
	EstimatedDurationSeconds float64 `json:"estimatedDurationSeconds"`
	Message                  string  `json:"message,omitempty"`
}

// ServerTranscription carries one rolling partial or final fragment.
type ServerTranscription struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	IsFinal      bool   `json:"isFinal"`
	Timestamp    string `json:"timestamp"`
	Speaker      string `json:"speaker,omitempty"`
	SpeakerID    *int   `json:"speakerId,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// ServerSuggestion carries the initial or seeded question set.
type ServerSuggestion struct {
	Type      string     `json:"type"`
	Questions []Question `json:"questions"`
	Context   string     `json:"context,omitempty"`
	Topics    []string   `json:"topics,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// ServerQuestionsUpdated carries the full visible question list after a
// rolling or replacement update.
type ServerQuestionsUpdated struct {
	Type      string     `json:"type"`
	Questions []Question `json:"questions"`
}

// ServerSessionAutoStopped notifies the client that the inactivity watchdog
// ended the session.
type ServerSessionAutoStopped struct {
	Type          string  `json:"type"`
	Reason        string  `json:"reason"`
	EndedAt       string  `json:"endedAt"`
	TotalDuration float64 `json:"totalDuration"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerPong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

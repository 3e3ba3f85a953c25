package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeClientMessage_JoinSession(t *testing.T) {
	raw := []byte(`{"type":"join-session","sessionId":"sess-1","attachToken":"abc.def.ghi"}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	join, ok := msg.(ClientJoinSession)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientJoinSession", msg)
	}
	if join.SessionID != "sess-1" || join.AttachToken != "abc.def.ghi" {
		t.Fatalf("join=%+v", join)
	}
}

func TestDecodeClientMessage_JoinSessionMissingID(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"join-session"}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "bad_request" || decErr.Param != "sessionId" {
		t.Fatalf("code=%q param=%q", decErr.Code, decErr.Param)
	}
}

func TestDecodeClientMessage_AudioChunk(t *testing.T) {
	raw := []byte(`{"type":"audio-chunk","sessionId":"sess-1","audioData":"AAAA"}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	chunk, ok := msg.(ClientAudioChunk)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientAudioChunk", msg)
	}
	if chunk.AudioData != "AAAA" {
		t.Fatalf("audioData=%q", chunk.AudioData)
	}
}

func TestDecodeClientMessage_AudioChunkMissingData(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"audio-chunk","sessionId":"sess-1"}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr := err.(*DecodeError)
	if decErr.Param != "audioData" {
		t.Fatalf("param=%q", decErr.Param)
	}
}

func TestDecodeClientMessage_Ping(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClientPing); !ok {
		t.Fatalf("decoded type = %T, want ClientPing", msg)
	}
}

func TestDecodeClientMessage_UnsupportedType(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"hello"}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.(*DecodeError).Param != "type" {
		t.Fatalf("param=%q", err.(*DecodeError).Param)
	}
}

func TestDecodeClientMessage_InvalidJSON(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DecodeClientMessage([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestServerMessages_WireShape(t *testing.T) {
	speakerID := 2
	data, err := json.Marshal(ServerTranscription{
		Type:         TypeTranscription,
		Text:         "hello there",
		IsFinal:      true,
		Timestamp:    "2026-01-02T15:04:05Z",
		Speaker:      "Speaker 2",
		SpeakerID:    &speakerID,
		LanguageCode: "en",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "text", "isFinal", "timestamp", "speaker", "speakerId", "languageCode"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}

	data, err = json.Marshal(ServerRecordingStatus{
		Type:                     TypeRecordingStatus,
		AudioSizeMB:              1.5,
		AudioChunks:              42,
		EstimatedDurationSeconds: 49.2,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m = map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"audioSizeMB", "audioChunks", "estimatedDurationSeconds"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
	if _, ok := m["message"]; ok {
		t.Fatalf("empty message should be omitted: %s", data)
	}
}

func TestQuestion_OmitsEmptyAnsweredAt(t *testing.T) {
	data, err := json.Marshal(Question{ID: "q1", Text: "What is churn?", CreatedAt: "2026-01-02T15:04:05Z"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["answeredAt"]; ok {
		t.Fatalf("answeredAt should be omitted when empty: %s", data)
	}
	if answered, ok := m["answered"]; !ok || answered != false {
		t.Fatalf("answered should always be present: %s", data)
	}
}

package events

import (
	"encoding/json"
	"strings"

	"callbridge.app/bridge/internal/backend"
	"callbridge.app/bridge/internal/model"
)

const (
	typeItemCreated           = "conversation.item.created"
	typeTranscriptionComplete = "conversation.item.input_audio_transcription.completed"
	typeResponseDone          = "response.done"
	typeAudioDelta            = "response.audio.delta"
	typeOutputAudioDelta      = "response.output_audio.delta"
	typeSpeechStarted         = "input_audio_buffer.speech_started"
	typeError                 = "error"
)

type contentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
}

type item struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

func (it item) text() string {
	parts := make([]string, 0, len(it.Content))
	for _, c := range it.Content {
		t := c.Text
		if t == "" {
			t = c.Transcript
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Normalize never fails: anything it cannot classify comes back as
// Unrecognized with a reason.
func Normalize(msg backend.Message) Event {
	switch msg.Type {
	case "":
		if !json.Valid(msg.Raw) {
			return Unrecognized{Reason: "malformed frame"}
		}
		return Unrecognized{Reason: "missing type"}

	case backend.TypeClosed:
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(msg.Raw, &body)
		return StreamEnded{Reason: body.Reason}

	case typeSpeechStarted:
		return UtteranceStarted{}

	case typeAudioDelta, typeOutputAudioDelta:
		var body struct {
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal(msg.Raw, &body); err != nil {
			return Unrecognized{Type: msg.Type, Reason: "malformed: " + err.Error()}
		}
		if body.Delta == "" {
			return Unrecognized{Type: msg.Type, Reason: "empty audio delta"}
		}
		return AudioFrameOut{Payload: body.Delta}

	case typeTranscriptionComplete:
		var body struct {
			ItemID     string `json:"item_id"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(msg.Raw, &body); err != nil {
			return Unrecognized{Type: msg.Type, Reason: "malformed: " + err.Error()}
		}
		text := strings.TrimSpace(body.Transcript)
		if text == "" {
			return Unrecognized{Type: msg.Type, Reason: "no text"}
		}
		return UtteranceText{Role: model.RoleCaller, Text: text, ItemID: body.ItemID}

	case typeItemCreated:
		var body struct {
			Item item `json:"item"`
		}
		if err := json.Unmarshal(msg.Raw, &body); err != nil {
			return Unrecognized{Type: msg.Type, Reason: "malformed: " + err.Error()}
		}
		role, ok := roleOf(body.Item.Role)
		if !ok {
			return Unrecognized{Type: msg.Type, Reason: "unsupported role " + body.Item.Role}
		}
		text := body.Item.text()
		if text == "" {
			return Unrecognized{Type: msg.Type, Reason: "no text"}
		}
		return UtteranceText{Role: role, Text: text, ItemID: body.Item.ID}

	case typeResponseDone:
		var body struct {
			Response struct {
				Output []item `json:"output"`
			} `json:"response"`
		}
		if err := json.Unmarshal(msg.Raw, &body); err != nil {
			return Unrecognized{Type: msg.Type, Reason: "malformed: " + err.Error()}
		}
		var (
			texts  []string
			itemID string
		)
		for _, out := range body.Response.Output {
			if out.Type != "" && out.Type != "message" {
				continue
			}
			if t := out.text(); t != "" {
				texts = append(texts, t)
				if itemID == "" {
					itemID = out.ID
				}
			}
		}
		if len(texts) == 0 {
			return Unrecognized{Type: msg.Type, Reason: "no text"}
		}
		return UtteranceText{Role: model.RoleAgent, Text: strings.Join(texts, " "), ItemID: itemID}

	case typeError:
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(msg.Raw, &body)
		return Unrecognized{Type: msg.Type, Reason: body.Error.Message}
	}

	return Unrecognized{Type: msg.Type, Reason: "unhandled type"}
}

func roleOf(s string) (model.Role, bool) {
	switch s {
	case "user":
		return model.RoleCaller, true
	case "assistant":
		return model.RoleAgent, true
	}
	return "", false
}

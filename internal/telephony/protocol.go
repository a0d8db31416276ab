// Package telephony speaks the Twilio Media Streams WebSocket protocol.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"

	eventClear = "clear"
)

var ErrEmptyFrame = errors.New("empty telephony frame")

// Event is one decoded inbound telephony message.
type Event interface {
	Name() string
}

type Connected struct {
	Protocol string
	Version  string
}

// Start carries the identifiers the rest of the call is addressed by.
type Start struct {
	CallSID          string
	StreamSID        string
	AccountSID       string
	Encoding         string
	SampleRate       int
	CustomParameters map[string]string
}

// Media carries one base64 audio chunk exactly as received.
type Media struct {
	Track     string
	Chunk     string
	Timestamp string
	Payload   string
}

type Stop struct {
	CallSID string
}

// Mark echoes back a mark we sent once the audio before it has played.
type Mark struct {
	Label string
}

type DTMF struct {
	Digit string
}

// Unknown is any event name this package does not interpret.
type Unknown struct {
	Event string
}

func (Connected) Name() string { return EventConnected }
func (Start) Name() string     { return EventStart }
func (Media) Name() string     { return EventMedia }
func (Stop) Name() string      { return EventStop }
func (Mark) Name() string      { return EventMark }
func (DTMF) Name() string      { return EventDTMF }
func (u Unknown) Name() string { return u.Event }

type envelope struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	Version   string `json:"version,omitempty"`
	Start     *struct {
		AccountSID  string `json:"accountSid"`
		CallSID     string `json:"callSid"`
		StreamSID   string `json:"streamSid"`
		MediaFormat struct {
			Encoding   string `json:"encoding"`
			SampleRate int    `json:"sampleRate"`
		} `json:"mediaFormat"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
	Stop *struct {
		CallSID string `json:"callSid"`
	} `json:"stop,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
}

// Decode parses one inbound text frame.
func Decode(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding telephony frame: %w", err)
	}

	switch env.Event {
	case EventConnected:
		return Connected{Protocol: env.Protocol, Version: env.Version}, nil
	case EventStart:
		if env.Start == nil {
			return nil, fmt.Errorf("start event without start payload")
		}
		streamSID := env.Start.StreamSID
		if streamSID == "" {
			streamSID = env.StreamSID
		}
		if env.Start.CallSID == "" || streamSID == "" {
			return nil, fmt.Errorf("start event missing callSid or streamSid")
		}
		return Start{
			CallSID:          env.Start.CallSID,
			StreamSID:        streamSID,
			AccountSID:       env.Start.AccountSID,
			Encoding:         env.Start.MediaFormat.Encoding,
			SampleRate:       env.Start.MediaFormat.SampleRate,
			CustomParameters: env.Start.CustomParameters,
		}, nil
	case EventMedia:
		if env.Media == nil {
			return nil, fmt.Errorf("media event without media payload")
		}
		return Media{
			Track:     env.Media.Track,
			Chunk:     env.Media.Chunk,
			Timestamp: env.Media.Timestamp,
			Payload:   env.Media.Payload,
		}, nil
	case EventStop:
		stop := Stop{}
		if env.Stop != nil {
			stop.CallSID = env.Stop.CallSID
		}
		return stop, nil
	case EventMark:
		mark := Mark{}
		if env.Mark != nil {
			mark.Label = env.Mark.Name
		}
		return mark, nil
	case EventDTMF:
		dtmf := DTMF{}
		if env.DTMF != nil {
			dtmf.Digit = env.DTMF.Digit
		}
		return dtmf, nil
	default:
		return Unknown{Event: env.Event}, nil
	}
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundControl struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
}

// EncodeMedia builds {"event":"media","streamSid":...,"media":{"payload":...}}.
// payload is already base64 (g711 µ-law passes through untouched).
func EncodeMedia(streamSID, payload string) ([]byte, error) {
	msg := outboundMedia{Event: EventMedia, StreamSID: streamSID}
	msg.Media.Payload = payload
	return json.Marshal(msg)
}

// EncodeClear asks the telephony leg to drop audio it has buffered but not played.
func EncodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(outboundControl{Event: eventClear, StreamSID: streamSID})
}

func EncodeMark(streamSID, name string) ([]byte, error) {
	msg := outboundControl{Event: EventMark, StreamSID: streamSID}
	msg.Mark = &struct {
		Name string `json:"name"`
	}{Name: name}
	return json.Marshal(msg)
}

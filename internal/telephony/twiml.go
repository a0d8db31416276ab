package telephony

import (
	"encoding/xml"
	"fmt"
)

type twimlResponse struct {
	XMLName  xml.Name      `xml:"Response"`
	Says     []twimlSay    `xml:"Say"`
	Connect  *twimlConnect `xml:"Connect,omitempty"`
	Hangup   *struct{}     `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// IncomingCallTwiML greets the caller on the owner's behalf and connects the
// call's audio to the media stream endpoint.
func IncomingCallTwiML(ownerName, streamURL string) ([]byte, error) {
	resp := twimlResponse{
		Says: []twimlSay{
			{Text: fmt.Sprintf("Hello, calling %s.", ownerName)},
			{Text: "Please wait while I connect you to our AI assistant."},
		},
		Connect: &twimlConnect{Stream: twimlStream{URL: streamURL}},
	}
	return marshalTwiML(resp)
}

// ErrorTwiML apologizes and hangs up.
func ErrorTwiML() []byte {
	out, err := marshalTwiML(twimlResponse{
		Says:   []twimlSay{{Text: "Sorry, there was an error. Please try again later."}},
		Hangup: &struct{}{},
	})
	if err != nil {
		return []byte(xml.Header + "<Response><Hangup></Hangup></Response>")
	}
	return out
}

func marshalTwiML(resp twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

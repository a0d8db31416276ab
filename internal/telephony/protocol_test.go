package telephony_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"callbridge.app/bridge/internal/telephony"
)

var _ = Describe("Decode", func() {
	It("decodes a start event", func() {
		ev, err := telephony.Decode([]byte(`{
			"event": "start",
			"sequenceNumber": "1",
			"start": {
				"accountSid": "AC1",
				"streamSid": "MZ1",
				"callSid": "CA1",
				"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
				"customParameters": {"from": "+15550100"}
			},
			"streamSid": "MZ1"
		}`))
		Expect(err).NotTo(HaveOccurred())

		start, ok := ev.(telephony.Start)
		Expect(ok).To(BeTrue())
		Expect(start.CallSID).To(Equal("CA1"))
		Expect(start.StreamSID).To(Equal("MZ1"))
		Expect(start.SampleRate).To(Equal(8000))
		Expect(start.CustomParameters).To(HaveKeyWithValue("from", "+15550100"))
	})

	It("falls back to the envelope streamSid", func() {
		ev, err := telephony.Decode([]byte(`{"event":"start","streamSid":"MZ9","start":{"callSid":"CA9"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.(telephony.Start).StreamSID).To(Equal("MZ9"))
	})

	It("rejects a start event without identifiers", func() {
		_, err := telephony.Decode([]byte(`{"event":"start","start":{}}`))
		Expect(err).To(HaveOccurred())
	})

	It("decodes media without touching the payload", func() {
		ev, err := telephony.Decode([]byte(`{"event":"media","media":{"track":"inbound","chunk":"2","payload":"f/9/fw=="}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(telephony.Media{Track: "inbound", Chunk: "2", Payload: "f/9/fw=="}))
	})

	It("decodes stop", func() {
		ev, err := telephony.Decode([]byte(`{"event":"stop","stop":{"callSid":"CA1"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(telephony.Stop{CallSID: "CA1"}))
	})

	It("decodes a mark echo with its label", func() {
		ev, err := telephony.Decode([]byte(`{"event":"mark","streamSid":"MZ1","mark":{"name":"turn-1"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(Equal(telephony.Mark{Label: "turn-1"}))
		Expect(ev.Name()).To(Equal("mark"))
	})

	It("keeps unknown events as Unknown", func() {
		ev, err := telephony.Decode([]byte(`{"event":"something-new"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Name()).To(Equal("something-new"))
	})

	It("fails on empty and malformed frames", func() {
		_, err := telephony.Decode(nil)
		Expect(err).To(MatchError(telephony.ErrEmptyFrame))

		_, err = telephony.Decode([]byte(`{`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("outbound encoding", func() {
	It("addresses media to the stream", func() {
		data, err := telephony.EncodeMedia("MZ1", "AAAA")
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(`{"event":"media","streamSid":"MZ1","media":{"payload":"AAAA"}}`))
	})

	It("encodes clear and mark", func() {
		clear, err := telephony.EncodeClear("MZ1")
		Expect(err).NotTo(HaveOccurred())
		Expect(clear).To(MatchJSON(`{"event":"clear","streamSid":"MZ1"}`))

		mark, err := telephony.EncodeMark("MZ1", "turn-1")
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(mark, &decoded)).To(Succeed())
		Expect(decoded["mark"]).To(HaveKeyWithValue("name", "turn-1"))
	})
})

var _ = Describe("TwiML", func() {
	It("greets and connects the stream", func() {
		out, err := telephony.IncomingCallTwiML("Dana", "wss://bridge.example.com/media-stream")
		Expect(err).NotTo(HaveOccurred())

		body := string(out)
		Expect(body).To(HavePrefix("<?xml"))
		Expect(body).To(ContainSubstring("<Say>Hello, calling Dana.</Say>"))
		Expect(body).To(ContainSubstring(`<Stream url="wss://bridge.example.com/media-stream"></Stream>`))
	})

	It("renders an apology that hangs up", func() {
		body := string(telephony.ErrorTwiML())
		Expect(body).To(ContainSubstring("Sorry, there was an error"))
		Expect(body).To(ContainSubstring("<Hangup></Hangup>"))
	})
})

package telephony

import (
	"encoding/json"
	"testing"
)

func TestParseInboundAcceptsStringAndNumericSequence(t *testing.T) {
	for _, raw := range []string{
		`{"event":"media","sequenceNumber":3,"streamSid":"ST1","media":{"payload":"//8=","chunk":1,"timestamp":1000}}`,
		`{"event":"media","sequenceNumber":"3","streamSid":"ST1","media":{"payload":"//8=","chunk":1,"timestamp":1000}}`,
	} {
		frame, err := ParseInbound([]byte(raw))
		if err != nil {
			t.Fatalf("valid frame rejected: %v\n%s", err, raw)
		}
		if frame.Event != EventMedia || frame.Media.Payload != "//8=" {
			t.Errorf("frame decoded wrong: %+v", frame)
		}
	}
}

func TestParseInboundRejectsBadFrames(t *testing.T) {
	cases := map[string]string{
		"unknown event":     `{"event":"pause","sequenceNumber":1,"streamSid":"ST1"}`,
		"missing streamSid": `{"event":"media","sequenceNumber":1,"media":{"payload":"AA==","chunk":1,"timestamp":1}}`,
		"missing sequence":  `{"event":"media","streamSid":"ST1","media":{"payload":"AA==","chunk":1,"timestamp":1}}`,
		"missing media":     `{"event":"media","sequenceNumber":1,"streamSid":"ST1"}`,
		"missing start":     `{"event":"start","sequenceNumber":1,"streamSid":"ST1"}`,
		"missing stop":      `{"event":"stop","sequenceNumber":1,"streamSid":"ST1"}`,
		"missing dtmf":      `{"event":"dtmf","sequenceNumber":1,"streamSid":"ST1"}`,
		"not json":          `media ST1`,
	}
	for name, raw := range cases {
		if _, err := ParseInbound([]byte(raw)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestParseInboundConnectedNeedsNoStream(t *testing.T) {
	frame, err := ParseInbound([]byte(`{"event":"connected","protocol":"Call","version":"1.0.0"}`))
	if err != nil {
		t.Fatalf("connected frame rejected: %v", err)
	}
	if frame.Event != EventConnected {
		t.Errorf("wrong event: %s", frame.Event)
	}
}

func TestParseInboundStartCarriesCallIdentity(t *testing.T) {
	raw := `{"event":"start","sequenceNumber":"1","streamSid":"ST1","start":{"callSid":"CA9","streamSid":"ST1","customParameters":{"caller_name":"Asha"}}}`
	frame, err := ParseInbound([]byte(raw))
	if err != nil {
		t.Fatalf("start frame rejected: %v", err)
	}
	if frame.Start.CallSID != "CA9" || frame.Start.CustomParameters["caller_name"] != "Asha" {
		t.Errorf("start data decoded wrong: %+v", frame.Start)
	}
}

func TestOutboundFrameShapes(t *testing.T) {
	media, _ := json.Marshal(NewMedia("ST1", 7, "cGF5"))
	want := `{"event":"media","sequenceNumber":7,"streamSid":"ST1","media":{"payload":"cGF5"}}`
	if string(media) != want {
		t.Errorf("media frame:\n got %s\nwant %s", media, want)
	}

	mark, _ := json.Marshal(NewMark("ST1", 8, "turn-1"))
	want = `{"event":"mark","sequenceNumber":8,"streamSid":"ST1","mark":{"name":"turn-1"}}`
	if string(mark) != want {
		t.Errorf("mark frame:\n got %s\nwant %s", mark, want)
	}

	clear, _ := json.Marshal(NewClear("ST1"))
	want = `{"event":"clear","streamSid":"ST1"}`
	if string(clear) != want {
		t.Errorf("clear frame:\n got %s\nwant %s", clear, want)
	}

	connected, _ := json.Marshal(NewConnected())
	want = `{"event":"connected","protocol":"Call","version":"1.0.0"}`
	if string(connected) != want {
		t.Errorf("connected frame:\n got %s\nwant %s", connected, want)
	}
}

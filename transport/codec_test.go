package transport

import (
	"errors"
	"testing"

	"go.aimuz.me/localflow/internal/types"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:3002", "ws://localhost:3002/socket.io/?EIO=4&transport=websocket", false},
		{"https://flow.example.com/", "wss://flow.example.com/socket.io/?EIO=4&transport=websocket", false},
		{"ws://10.0.0.2:3002/base", "ws://10.0.0.2:3002/base/socket.io/?EIO=4&transport=websocket", false},
		{"ftp://localhost", "", true},
		{"http://", "", true},
		{"localhost:3002", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := endpointURL(tt.base)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeFrames(t *testing.T) {
	if got := string(encodeConnect("/agent")); got != "40/agent," {
		t.Errorf("connect = %q", got)
	}
	if got := string(encodeConnect("/")); got != "40" {
		t.Errorf("root connect = %q", got)
	}
	if got := string(encodeDisconnect("/agent")); got != "41/agent," {
		t.Errorf("disconnect = %q", got)
	}

	ping, err := encodeEvent("/agent", EventPing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(ping) != `42/agent,["ping"]` {
		t.Errorf("ping = %q", ping)
	}

	started, err := encodeEvent("/agent", EventRecordingStarted, RecordingStarted{Timestamp: 42, FormatMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if want := `42/agent,["recording_started",{"timestamp":42,"format_mode":true}]`; string(started) != want {
		t.Errorf("recording_started = %q, want %q", started, want)
	}
}

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType packetType
		wantNS   string
		wantData string
		wantErr  bool
	}{
		{"namespaced event", `2/agent,["dictation_result",{"success":true}]`, packetEvent, "/agent", `["dictation_result",{"success":true}]`, false},
		{"connect ack", `0/agent,{"sid":"abc"}`, packetConnect, "/agent", `{"sid":"abc"}`, false},
		{"root namespace", `2["hello"]`, packetEvent, "/", `["hello"]`, false},
		{"with ack id", `2/agent,17["hello"]`, packetEvent, "/agent", `["hello"]`, false},
		{"disconnect", `1/agent,`, packetDisconnect, "/agent", "", false},
		{"binary event", `51-/agent,["blob",{"_placeholder":true,"num":0}]`, packetBinaryEvent, "/agent", `["blob",{"_placeholder":true,"num":0}]`, false},
		{"connect error", `4/agent,{"message":"unauthorized"}`, packetConnectError, "/agent", `{"message":"unauthorized"}`, false},
		{"empty", ``, 0, "", "", true},
		{"bad json", `2/agent,["x"`, 0, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodePacket([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, errMalformedPacket) {
					t.Fatalf("got %v, want errMalformedPacket", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Type != tt.wantType || p.Namespace != tt.wantNS || string(p.Data) != tt.wantData {
				t.Fatalf("got {%c %q %s}, want {%c %q %s}", p.Type, p.Namespace, p.Data, tt.wantType, tt.wantNS, tt.wantData)
			}
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	name, arg, err := decodeEvent([]byte(`["settings_update",{"mode":"concise"}]`))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := decodeMessage(name, arg)
	if err != nil {
		t.Fatal(err)
	}
	su, ok := msg.(SettingsUpdate)
	if !ok {
		t.Fatalf("got %T, want SettingsUpdate", msg)
	}
	if su.Mode == nil || *su.Mode != types.ModeConcise {
		t.Fatalf("mode = %v", su.Mode)
	}
	if su.ProcessingMode != nil || su.Hotkey != nil {
		t.Fatal("absent fields must stay nil")
	}

	msg, err = decodeMessage(EventDictationResult, []byte(`{"success":true,"refinedText":"hi","wordCount":1,"processingTime":812.5}`))
	if err != nil {
		t.Fatal(err)
	}
	res := msg.(DictationResult)
	if res.RefinedText != "hi" || res.Processing().Milliseconds() != 812 {
		t.Fatalf("unexpected result %+v", res)
	}

	// events without an argument decode to the zero value
	if _, err := decodeMessage(EventConnectionConfirmed, nil); err != nil {
		t.Fatalf("connection_confirmed without data: %v", err)
	}

	var unknown *UnknownEventError
	if _, err := decodeMessage("pong", nil); !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownEventError", err)
	}
}

func TestConnectErrorMessage(t *testing.T) {
	tests := map[string]string{
		`{"message":"unauthorized"}`: "unauthorized",
		`"bad namespace"`:            "bad namespace",
		`42`:                         `"42"`,
	}
	for in, want := range tests {
		if got := connectErrorMessage([]byte(in)); got != want {
			t.Errorf("connectErrorMessage(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestHandshakeReadLimit(t *testing.T) {
	tests := []struct {
		name string
		hs   handshake
		want int64
	}{
		{"advertised", handshake{MaxPayload: 1000000}, 1000000},
		{"missing", handshake{}, defaultReadLimit},
		{"negative", handshake{MaxPayload: -1}, defaultReadLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hs.readLimit(); got != tt.want {
				t.Fatalf("readLimit = %d, want %d", got, tt.want)
			}
		})
	}
}

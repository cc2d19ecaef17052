package domain

import "testing"

func TestLogEventWireShape(t *testing.T) {
	data, err := LogEvent{Log: "hello"}.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"log":"hello"}` {
		t.Fatalf("unexpected payload %s", data)
	}
	parsed, err := ParseLogEvent(data)
	if err != nil || parsed.Log != "hello" {
		t.Fatalf("parse returned %+v, %v", parsed, err)
	}
}

func TestProjectFromChannel(t *testing.T) {
	cases := map[string]struct {
		id string
		ok bool
	}{
		"logs:calm-red-fox": {"calm-red-fox", true},
		"logs:":             {"", false},
		"metrics:abc":       {"", false},
		"logs:a b":          {"", false},
	}
	for channel, want := range cases {
		id, ok := ProjectFromChannel(channel)
		if id != want.id || ok != want.ok {
			t.Fatalf("%q: got (%q, %v), want (%q, %v)", channel, id, ok, want.id, want.ok)
		}
	}
}

func TestTerminalLines(t *testing.T) {
	if !IsTerminal(LineDone) || !IsTerminal(FailedLine("build")) {
		t.Fatal("expected terminal lines to be recognised")
	}
	if IsTerminal(LineBuildStarted) || IsTerminal("uploaded index.html") {
		t.Fatal("non-terminal line reported as terminal")
	}
	if got := StorageKey("p", "a/b.js"); got != "__outputs/p/a/b.js" {
		t.Fatalf("unexpected key %s", got)
	}
}

package domain

import (
	"encoding/json"
	"strings"
)

const (
	// LogChannelPrefix prefixes every per-project log channel name.
	LogChannelPrefix = "logs:"

	LineBuildStarted = "Build Started..."
	LineDone         = "Done"
	lineFailedPrefix = "Build Failed"
)

// LogEvent is the single-field record published on a project's log channel.
// Its wire form is {"log": "<line>"} for producers and the relay alike.
type LogEvent struct {
	Log string `json:"log"`
}

// Marshal encodes the event in its wire form.
func (e LogEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseLogEvent decodes a wire payload.
func ParseLogEvent(payload []byte) (LogEvent, error) {
	var e LogEvent
	err := json.Unmarshal(payload, &e)
	return e, err
}

// LogChannel returns the channel name carrying a project's log events.
func LogChannel(projectID string) string {
	return LogChannelPrefix + projectID
}

// ProjectFromChannel extracts the project id from a log channel name.
func ProjectFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, LogChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, LogChannelPrefix)
	if id == "" || strings.ContainsAny(id, " \t\r\n*>") {
		return "", false
	}
	return id, true
}

// FailedLine renders the terminal failure line for a stage.
func FailedLine(stage string) string {
	if stage == "" {
		return lineFailedPrefix
	}
	return lineFailedPrefix + ": " + stage
}

// IsTerminal reports whether a log line marks the end of a build.
func IsTerminal(line string) bool {
	return line == LineDone || strings.HasPrefix(line, lineFailedPrefix)
}

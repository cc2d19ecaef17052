// Package executor launches isolated build workers. A launch is fire and
// forget: the caller only learns whether the run was accepted, never how the
// build ended.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// EnvSourceURL carries the repository URL into the worker.
	EnvSourceURL = "GIT_REPOSITORY__URL"
	// EnvProjectID carries the project id into the worker.
	EnvProjectID = "PROJECT_ID"
)

var (
	errMissingProjectID = errors.New("executor: project id required")
	errMissingSourceURL = errors.New("executor: source url required")
)

// Spec binds a build run to a project.
type Spec struct {
	ProjectID string
	SourceURL string
}

// Validate checks both fields are present.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ProjectID) == "" {
		return errMissingProjectID
	}
	if strings.TrimSpace(s.SourceURL) == "" {
		return errMissingSourceURL
	}
	return nil
}

// Env renders the worker environment for the launch.
func (s Spec) Env() []string {
	return []string{EnvSourceURL + "=" + s.SourceURL, EnvProjectID + "=" + s.ProjectID}
}

// Handle is the opaque acknowledgment of a launched run.
type Handle struct {
	ID         string
	Backend    string
	LaunchedAt time.Time
}

// Executor launches a build worker for spec without waiting for it.
type Executor interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// PassthroughEnv returns KEY=VALUE pairs for each of keys set in the
// current environment, as read through lookup.
func PassthroughEnv(keys []string, lookup func(string) (string, bool)) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == EnvSourceURL || key == EnvProjectID {
			continue
		}
		if value, ok := lookup(key); ok {
			out = append(out, key+"="+value)
		}
	}
	return out
}

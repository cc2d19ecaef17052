// Package edge serves published build output by mapping a request's host or
// path onto a storage key.
package edge

import (
	"errors"
	"fmt"
	"net"
	"path"
	"strings"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
	"github.com/GeneCodeSavvy/maybe-vercel/internal/slug"
)

// Mode selects where the project id is read from.
type Mode string

const (
	// ModeSubdomain reads the id from the first DNS label of the Host.
	ModeSubdomain Mode = "subdomain"
	// ModePath reads the id from the first URL path segment.
	ModePath Mode = "path"

	indexFile = "index.html"
)

// ErrNoProject is returned when a request does not name a project.
var ErrNoProject = errors.New("edge: no project in request")

// Target is a resolved request.
type Target struct {
	ProjectID string
	// Path is relative to the project's output root.
	Path string
	Key  string
	// Redirect is set in path mode when the project root was requested
	// without its trailing slash.
	Redirect string
}

// Resolver maps requests to storage keys. It is stateless.
type Resolver struct {
	mode Mode
}

// NewResolver validates mode.
func NewResolver(mode string) (Resolver, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case ModeSubdomain, "":
		return Resolver{mode: ModeSubdomain}, nil
	case ModePath:
		return Resolver{mode: ModePath}, nil
	default:
		return Resolver{}, fmt.Errorf("unknown serving mode %q", mode)
	}
}

// Mode reports the configured mode.
func (r Resolver) Mode() Mode {
	return r.mode
}

// Resolve maps host and urlPath to the object that should answer them.
func (r Resolver) Resolve(host, urlPath string) (Target, error) {
	var projectID, rest string
	switch r.mode {
	case ModePath:
		trimmed := strings.TrimPrefix(urlPath, "/")
		id, remainder, hasSlash := strings.Cut(trimmed, "/")
		projectID = id
		if !hasSlash {
			if !slug.Valid(projectID) {
				return Target{}, ErrNoProject
			}
			return Target{ProjectID: projectID, Redirect: "/" + projectID + "/"}, nil
		}
		rest = "/" + remainder
	default:
		projectID = subdomain(host)
		rest = urlPath
	}
	if !slug.Valid(projectID) {
		return Target{}, ErrNoProject
	}
	rel := relativePath(rest)
	return Target{ProjectID: projectID, Path: rel, Key: domain.StorageKey(projectID, rel)}, nil
}

// relativePath turns a URL path into a path under the project root. Directory
// requests get index.html and dot segments can never climb out of the root.
func relativePath(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		p += indexFile
	}
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return indexFile
	}
	return cleaned
}

func subdomain(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	label, _, _ := strings.Cut(host, ".")
	return strings.ToLower(label)
}

package domain

import "time"

// ProjectStatus describes where a project is in its build lifecycle.
type ProjectStatus string

const (
	StatusQueued   ProjectStatus = "queued"
	StatusBuilding ProjectStatus = "building"
	StatusReady    ProjectStatus = "ready"
	StatusFailed   ProjectStatus = "failed"
)

// OutputsPrefix is the storage prefix under which every build output lives.
const OutputsPrefix = "__outputs"

// Project is one build-and-serve unit identified by a generated slug.
type Project struct {
	ID        string
	SourceURL string
	CreatedAt time.Time
	Status    ProjectStatus
}

// StorageKey returns the object key for a file of a project's build output.
func StorageKey(projectID, relativePath string) string {
	return OutputsPrefix + "/" + projectID + "/" + relativePath
}

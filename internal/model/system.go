package model

// VersionInfo contains the build and schema versions of the running service.
type VersionInfo struct {
	AppVersion    string `json:"app_version"`
	SchemaVersion int64  `json:"schema_version"`
}

package core

// Version is the build-time binary version (e.g. "v1.2.3").
type Version string

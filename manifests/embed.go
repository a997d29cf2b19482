// Package manifests embeds the CustomResourceDefinitions of the
// bundled plugins. Keeping the manifests in a top-level directory
// (rather than internal/) makes them easy to inspect and update
// without diving into Go packages.
package manifests

import "embed"

// CRDs holds one definition per bundled kind. Files are accessed via
// the "crds/" prefix.
//
//go:embed crds/*.yaml
var CRDs embed.FS

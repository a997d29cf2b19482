package core

import (
	"context"

	"k8s.io/apimachinery/pkg/version"
)

// DiscoveryClient reports facts about the API server that change how
// watches are opened.
type DiscoveryClient interface {
	ServerVersion(ctx context.Context) (*version.Info, error)
}

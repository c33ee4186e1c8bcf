// Package permission checks that the process may scan and control the
// Wi-Fi radio before any scan is attempted.
package permission

import (
	"context"

	"github.com/go-logr/logr"
)

type Gate interface {
	// Acquire reports whether the capability is granted. A denial is not
	// an error and is never retried.
	Acquire(ctx context.Context) bool
}

// Granted is the gate of platforms that need no explicit grant.
type Granted struct{}

func (Granted) Acquire(ctx context.Context) bool { return true }

type PermissionsReader interface {
	Permissions(ctx context.Context) (map[string]string, error)
}

// Required NetworkManager permissions.
var Required = []string{
	"org.freedesktop.NetworkManager.wifi.scan",
	"org.freedesktop.NetworkManager.network-control",
}

// NetworkManager grants when every Required permission is "yes", or
// "auth" (polkit will prompt the user).
type NetworkManager struct {
	log    logr.Logger
	reader PermissionsReader
}

func NewNetworkManager(log logr.Logger, reader PermissionsReader) *NetworkManager {
	return &NetworkManager{log: log.WithName("permission"), reader: reader}
}

func (g *NetworkManager) Acquire(ctx context.Context) bool {
	perms, err := g.reader.Permissions(ctx)
	if err != nil {
		g.log.Error(err, "Unable to read permissions")
		return false
	}
	for _, p := range Required {
		switch v := perms[p]; v {
		case "yes", "auth":
			g.log.V(1).Info("Granted", "permission", p, "value", v)
		default:
			g.log.Info("Denied", "permission", p, "value", v)
			return false
		}
	}
	return true
}

package bridge

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/objects"
)

// LoadRoles builds the role table: built-in templates, then the YAML
// file at path, then the native map of the meta.roles object. A missing
// or unreadable source is logged and skipped.
func LoadRoles(ctx context.Context, store objects.Store, path string) objects.RoleTable {
	roles := objects.BuiltinRoles()
	if err := roles.LoadRoleFile(path); err != nil {
		log.WithField("component", "bridge").Warnf("Ignoring role file: %v", err)
	}

	meta, err := store.GetObject(ctx, objects.IDMetaRoles)
	switch {
	case errors.Is(err, objects.ErrNotFound):
	case err != nil:
		log.WithField("component", "bridge").Warnf("Could not read %s: %v", objects.IDMetaRoles, err)
	default:
		roles.MergeNative(meta.Native)
	}
	return roles
}

// Package provisioning resolves tenants to remote database resources: it
// derives a deterministic resource name per tenant, finds or creates the
// matching project on the database-hosting control plane, and caches the
// resolved connection string for the life of the process.
package provisioning

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/shamanic-technologies/agent-base-sub002/pkg/models"
)

const (
	// resourceNamePrefix marks resources managed by this system on the
	// control plane.
	resourceNamePrefix = "db-"

	// resourceNameHashLen is the number of hex digits kept from the tenant
	// digest. 16 digits (64 bits) keeps collision probability negligible at
	// any realistic tenant count while staying well inside the hosting
	// API's name length limit.
	resourceNameHashLen = 16
)

// ResourceNameFor derives the remote resource name for a tenant. The name
// is the join key between a tenant and its database across process
// restarts, so it must be a pure function of the tenant key: same key,
// same name, always.
func ResourceNameFor(key models.TenantKey) string {
	sum := sha256.Sum256([]byte(key.OrganizationID + ":" + key.UserID))
	return resourceNamePrefix + hex.EncodeToString(sum[:])[:resourceNameHashLen]
}

// Package models defines the core data types shared across the provisioning
// and execution-logging components.
package models

import "time"

// TenantKey identifies a tenant as an (organization, user) pair. Both
// identifiers are opaque strings supplied by the caller.
type TenantKey struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
}

// RemoteProject is the control plane's record of a hosted database project.
type RemoteProject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Ready reports whether the control plane considers the project usable.
// An empty state is treated as ready for control planes that provision
// synchronously and never report one.
func (p *RemoteProject) Ready() bool {
	switch p.State {
	case "", "ready", "active", "idle":
		return true
	default:
		return false
	}
}

// ProvisionedResource is a fully resolved tenant database: the remote
// project identity plus a connection string for its default database and
// role. Immutable once created; cached for process lifetime.
type ProvisionedResource struct {
	ProjectID     string `json:"project_id"`
	ResourceName  string `json:"resource_name"`
	ConnectionURI string `json:"connection_uri"`
}

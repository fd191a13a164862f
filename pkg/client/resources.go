package client

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Resource names a Flight Control collection reachable under /api/v1.
type Resource string

const (
	ResourceDevices            Resource = "devices"
	ResourceFleets             Resource = "fleets"
	ResourceEvents             Resource = "events"
	ResourceEnrollmentRequests Resource = "enrollmentrequests"
	ResourceRepositories       Resource = "repositories"
	ResourceResourceSyncs      Resource = "resourcesyncs"
)

var resourceKinds = map[Resource]string{
	ResourceDevices:            "Device",
	ResourceFleets:             "Fleet",
	ResourceEvents:             "Event",
	ResourceEnrollmentRequests: "EnrollmentRequest",
	ResourceRepositories:       "Repository",
	ResourceResourceSyncs:      "ResourceSync",
}

// Kind returns the singular kind name used in audit records, or "" for an
// unknown resource.
func (r Resource) Kind() string {
	return resourceKinds[r]
}

// Valid reports whether r names a supported collection.
func (r Resource) Valid() bool {
	_, ok := resourceKinds[r]
	return ok
}

// Resources returns the supported collections in stable order.
func Resources() []Resource {
	kinds := maps.Keys(resourceKinds)
	slices.Sort(kinds)
	return kinds
}

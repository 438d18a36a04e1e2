package event

import "errors"

// ErrNoRoutingTarget is returned by RoutingTarget.ToRoutingTarget when the
// original string was empty or whitespace-only.
var ErrNoRoutingTarget = errors.New("routing target not resolved")

// ErrPublicationExists is returned by Store.Create when id collides with an
// existing publication.
var ErrPublicationExists = errors.New("publication already exists")

// ErrPublicationNotFound is returned when a lookup by id finds nothing.
var ErrPublicationNotFound = errors.New("publication not found")

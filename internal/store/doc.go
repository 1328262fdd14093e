// Package store defines the persistence interfaces and shared types used by
// the service layer. Concrete implementations live under internal/platform
// (postgres, memory); the interfaces here are the only coupling point between
// business logic and storage.
package store

package storage

import (
	"github.com/homebus/conductor/pkg/types"
)

// Store defines the interface for orchestrator state storage.
// Implemented by the BoltDB-backed store.
type Store interface {
	// Service definitions
	PutDefinition(def *types.ServiceDefinition) error
	GetDefinition(name string) (*types.ServiceDefinition, error)
	ListDefinitions() ([]*types.ServiceDefinition, error)
	DeleteDefinition(name string) error

	// Service groups
	PutGroup(group *types.ServiceGroup) error
	GetGroup(name string) (*types.ServiceGroup, error)
	ListGroups() ([]*types.ServiceGroup, error)
	DeleteGroup(name string) error

	// Tasks (audit trail; completed tasks are retained, never deleted)
	PutTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	ListTasksByService(service string) ([]*types.Task, error)

	// Utility
	Close() error
}

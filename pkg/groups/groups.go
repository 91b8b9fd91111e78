package groups

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/homebus/conductor/pkg/events"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/registry"
	"github.com/homebus/conductor/pkg/storage"
	"github.com/homebus/conductor/pkg/types"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrEmptyGroup    = errors.New("group has no members")
)

// TaskCreator is the slice of the scheduler the coordinator needs.
type TaskCreator interface {
	CreateTask(action types.TaskAction, service, instanceID string, params map[string]string, createdBy string) (*types.Task, error)
}

// Coordinator manages named service groups and expands group start/stop
// requests into per-member tasks. Expansion is sequencing, not a
// transaction: every member gets its task submitted even if a sibling's
// submission fails, and a member task failing later does not roll back
// the others.
type Coordinator struct {
	registry *registry.Registry
	creator  TaskCreator
	store    storage.Store
	broker   *events.Broker
	logger   zerolog.Logger

	mu     sync.Mutex
	groups map[string]*types.ServiceGroup
}

// New creates a coordinator, loading persisted groups when a store is
// present. The store and broker may be nil.
func New(reg *registry.Registry, creator TaskCreator, store storage.Store, broker *events.Broker) (*Coordinator, error) {
	c := &Coordinator{
		registry: reg,
		creator:  creator,
		store:    store,
		broker:   broker,
		logger:   log.WithComponent("groups"),
		groups:   make(map[string]*types.ServiceGroup),
	}

	if store != nil {
		persisted, err := store.ListGroups()
		if err != nil {
			return nil, fmt.Errorf("failed to load groups: %w", err)
		}
		for _, group := range persisted {
			c.groups[group.Name] = group
		}
	}

	return c, nil
}

// Define registers a group. Members must exist in the service catalog
// and any explicit order must be a permutation of the members.
func (c *Coordinator) Define(group *types.ServiceGroup) error {
	if len(group.Members) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyGroup, group.Name)
	}
	for _, member := range group.Members {
		if _, ok := c.registry.Get(member); !ok {
			return fmt.Errorf("group %s: unknown service %s", group.Name, member)
		}
	}
	if err := validateOrder(group, group.StartOrder, "start_order"); err != nil {
		return err
	}
	if err := validateOrder(group, group.StopOrder, "stop_order"); err != nil {
		return err
	}

	c.mu.Lock()
	if _, exists := c.groups[group.Name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGroupExists, group.Name)
	}
	c.groups[group.Name] = group
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PutGroup(group); err != nil {
			return fmt.Errorf("failed to persist group %s: %w", group.Name, err)
		}
	}

	c.logger.Info().Str("group", group.Name).Strs("members", group.Members).Msg("group defined")
	return nil
}

// Delete removes a group definition. Running members are unaffected.
func (c *Coordinator) Delete(name string) error {
	c.mu.Lock()
	if _, ok := c.groups[name]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	delete(c.groups, name)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteGroup(name); err != nil {
			return fmt.Errorf("failed to delete group %s: %w", name, err)
		}
	}
	return nil
}

// Get returns a copy of a group by name.
func (c *Coordinator) Get(name string) (types.ServiceGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.groups[name]
	if !ok {
		return types.ServiceGroup{}, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	return *group, nil
}

// List returns copies of all groups sorted by name.
func (c *Coordinator) List() []types.ServiceGroup {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.ServiceGroup, 0, len(c.groups))
	for _, group := range c.groups {
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start submits a start task for every member in dependency order, or in
// the group's explicit start order when one is set. It returns the ids of
// the tasks it managed to submit; a submission failure for one member
// does not stop the rest.
func (c *Coordinator) Start(name, createdBy string) ([]string, error) {
	group, err := c.Get(name)
	if err != nil {
		return nil, err
	}

	order, err := c.startOrder(&group)
	if err != nil {
		return nil, err
	}

	ids := c.submit(types.ActionStart, order, createdBy)
	c.publish(events.EventGroupStarted, &group, ids)
	return ids, nil
}

// Stop submits a stop task for every member in reverse dependency order,
// or in the group's explicit stop order when one is set.
func (c *Coordinator) Stop(name, createdBy string) ([]string, error) {
	group, err := c.Get(name)
	if err != nil {
		return nil, err
	}

	var order []string
	if len(group.StopOrder) > 0 {
		order = append(order, group.StopOrder...)
	} else {
		order, err = c.startOrder(&group)
		if err != nil {
			return nil, err
		}
		reverse(order)
	}

	ids := c.submit(types.ActionStop, order, createdBy)
	c.publish(events.EventGroupStopped, &group, ids)
	return ids, nil
}

// LoadFile defines groups from a YAML file. Each group is defined
// independently; one bad group does not block the others.
func (c *Coordinator) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read group file: %w", err)
	}

	var file struct {
		Groups []*types.ServiceGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse group file %s: %w", path, err)
	}

	var errs []error
	for _, group := range file.Groups {
		if err := c.Define(group); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) startOrder(group *types.ServiceGroup) ([]string, error) {
	if len(group.StartOrder) > 0 {
		return append([]string(nil), group.StartOrder...), nil
	}
	order, err := c.registry.Graph().OrderSubset(group.Members)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", group.Name, err)
	}
	return order, nil
}

func (c *Coordinator) submit(action types.TaskAction, members []string, createdBy string) []string {
	ids := make([]string, 0, len(members))
	for _, member := range members {
		task, err := c.creator.CreateTask(action, member, "", nil, createdBy)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("service", member).
				Str("action", string(action)).
				Msg("failed to submit group member task")
			continue
		}
		ids = append(ids, task.ID)
	}
	return ids
}

func (c *Coordinator) publish(eventType events.EventType, group *types.ServiceGroup, ids []string) {
	if c.broker == nil {
		return
	}
	c.broker.Publish(&events.Event{
		Type:    eventType,
		Message: fmt.Sprintf("%s: %d member tasks submitted", group.Name, len(ids)),
		Metadata: map[string]string{
			"group":   group.Name,
			"members": fmt.Sprintf("%d", len(group.Members)),
		},
	})
}

func validateOrder(group *types.ServiceGroup, order []string, field string) error {
	if len(order) == 0 {
		return nil
	}
	if len(order) != len(group.Members) {
		return fmt.Errorf("group %s: %s must list every member exactly once", group.Name, field)
	}
	members := make(map[string]bool, len(group.Members))
	for _, m := range group.Members {
		members[m] = true
	}
	seen := make(map[string]bool, len(order))
	for _, m := range order {
		if !members[m] {
			return fmt.Errorf("group %s: %s names non-member %s", group.Name, field, m)
		}
		if seen[m] {
			return fmt.Errorf("group %s: %s lists %s twice", group.Name, field, m)
		}
		seen[m] = true
	}
	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

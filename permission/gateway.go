// Package permission owns group membership and resource permissions.
// Reads are served from memory; every mutation is written through to the repository first.
package permission

import (
	"courier/contract"
	"courier/domain"
	"courier/errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Set map[string]struct{}

type group struct {
	creator   string
	createdAt time.Time
	members   Set
}

// Gateway uses a single RWMutex: membership changes are low-frequency
// administrative traffic, membership checks are read-only.
type Gateway struct {
	mu         sync.RWMutex
	log        *slog.Logger
	repository contract.IGroupRepository
	groups     map[string]*group
	grants     map[string]map[string]domain.Permission // user -> resource -> permissions
}

func NewGateway(repository contract.IGroupRepository, log *slog.Logger) *Gateway {
	return &Gateway{
		log:        log,
		repository: repository,
		groups:     make(map[string]*group),
		grants:     make(map[string]map[string]domain.Permission),
	}
}

// Load replaces the in-memory state with what the repository holds.
func (g *Gateway) Load() error {
	records, err := g.repository.LoadGroups()
	if err != nil {
		return err
	}
	grants, err := g.repository.LoadGrants()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = make(map[string]*group, len(records))
	for _, record := range records {
		members := make(Set, len(record.Members))
		for _, m := range record.Members {
			members[m] = struct{}{}
		}
		g.groups[record.Name] = &group{creator: record.Creator, createdAt: record.CreatedAt, members: members}
	}
	g.grants = make(map[string]map[string]domain.Permission)
	for _, grant := range grants {
		g.setGrant(grant.User, grant.Resource, grant.Permissions)
	}
	g.log.Info("Permission state loaded", "groups", len(records), "grants", len(grants))
	return nil
}

func (g *Gateway) IsMember(user, groupName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[groupName]
	if !ok {
		return false
	}
	_, ok = grp.members[user]
	return ok
}

// MembersOf returns a sorted snapshot; later membership changes do not affect it.
// Unknown groups yield an empty slice.
func (g *Gateway) MembersOf(groupName string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grp, ok := g.groups[groupName]
	if !ok {
		return []string{}
	}
	members := lo.Keys(grp.members)
	sort.Strings(members)
	return members
}

func (g *Gateway) GroupsOf(user string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	groups := make([]string, 0)
	for name, grp := range g.groups {
		if _, ok := grp.members[user]; ok {
			groups = append(groups, name)
		}
	}
	sort.Strings(groups)
	return groups
}

// Groups lists every known group.
func (g *Gateway) Groups() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := lo.Keys(g.groups)
	sort.Strings(names)
	return names
}

// CreateGroup makes creator the first member. Creating an existing group is a no-op.
func (g *Gateway) CreateGroup(groupName, creator string) error {
	if err := validateNames(groupName, creator); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[groupName]; ok {
		return nil
	}
	grp := &group{creator: creator, createdAt: time.Now().UTC(), members: Set{creator: {}}}
	if err := g.repository.SaveGroup(toRecord(groupName, grp)); err != nil {
		return err
	}
	g.groups[groupName] = grp
	g.log.Info("Group created", "group", groupName, "creator", creator)
	return nil
}

// AddMember creates the group on first join, with the joining user as creator.
func (g *Gateway) AddMember(groupName, user string) error {
	if err := validateNames(groupName, user); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupName]
	if !ok {
		grp = &group{creator: user, createdAt: time.Now().UTC(), members: Set{}}
	}
	if _, member := grp.members[user]; member {
		return nil
	}
	next := cloneGroup(grp)
	next.members[user] = struct{}{}
	if err := g.repository.SaveGroup(toRecord(groupName, next)); err != nil {
		return err
	}
	g.groups[groupName] = next
	g.log.Debug("Member added", "group", groupName, "user", user)
	return nil
}

// RemoveMember is a no-op for absent members and unknown groups. The group
// itself survives even when its last member leaves.
func (g *Gateway) RemoveMember(groupName, user string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupName]
	if !ok {
		return nil
	}
	if _, member := grp.members[user]; !member {
		return nil
	}
	next := cloneGroup(grp)
	delete(next.members, user)
	if err := g.repository.SaveGroup(toRecord(groupName, next)); err != nil {
		return err
	}
	g.groups[groupName] = next
	g.log.Debug("Member removed", "group", groupName, "user", user)
	return nil
}

func (g *Gateway) DeleteGroup(groupName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.groups[groupName]; !ok {
		return nil
	}
	if err := g.repository.DeleteGroup(groupName); err != nil {
		return err
	}
	delete(g.groups, groupName)
	g.log.Info("Group deleted", "group", groupName)
	return nil
}

// Grant adds permission to what user already holds on resource.
func (g *Gateway) Grant(user, resource string, permission domain.Permission) error {
	if user == "" || resource == "" {
		return fmt.Errorf("%w: user and resource are required", errors.ErrInvalidArgument)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	current := g.grants[user][resource]
	next := current | permission
	if next == current {
		return nil
	}
	if err := g.repository.SaveGrant(domain.Grant{User: user, Resource: resource, Permissions: next}); err != nil {
		return err
	}
	g.setGrant(user, resource, next)
	return nil
}

// Revoke removes permission; the grant disappears once nothing is left.
func (g *Gateway) Revoke(user, resource string, permission domain.Permission) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	current, ok := g.grants[user][resource]
	if !ok {
		return nil
	}
	next := current &^ permission
	if next == current {
		return nil
	}
	var err error
	if next == 0 {
		err = g.repository.DeleteGrant(user, resource)
	} else {
		err = g.repository.SaveGrant(domain.Grant{User: user, Resource: resource, Permissions: next})
	}
	if err != nil {
		return err
	}
	g.setGrant(user, resource, next)
	return nil
}

// Authorize is independent from group membership. Admin implies every permission.
func (g *Gateway) Authorize(user, resource string, permission domain.Permission) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	held := g.grants[user][resource]
	if held&domain.PermissionAdmin != 0 {
		return true
	}
	return permission != 0 && held&permission == permission
}

// setGrant must be called with the write lock held.
func (g *Gateway) setGrant(user, resource string, permissions domain.Permission) {
	if permissions == 0 {
		delete(g.grants[user], resource)
		if len(g.grants[user]) == 0 {
			delete(g.grants, user)
		}
		return
	}
	if _, ok := g.grants[user]; !ok {
		g.grants[user] = make(map[string]domain.Permission)
	}
	g.grants[user][resource] = permissions
}

func cloneGroup(grp *group) *group {
	members := make(Set, len(grp.members)+1)
	for m := range grp.members {
		members[m] = struct{}{}
	}
	return &group{creator: grp.creator, createdAt: grp.createdAt, members: members}
}

func toRecord(name string, grp *group) domain.GroupRecord {
	members := lo.Keys(grp.members)
	sort.Strings(members)
	return domain.GroupRecord{Name: name, Creator: grp.creator, Members: members, CreatedAt: grp.createdAt}
}

func validateNames(groupName, user string) error {
	if _, err := domain.NewIdentity(domain.KindGroup, groupName); err != nil {
		return err
	}
	_, err := domain.NewIdentity(domain.KindUser, user)
	return err
}

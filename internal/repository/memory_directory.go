package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type memoryTeam struct {
	projectID string
	leadID    string
	members   map[string]bool
}

// MemoryDirectory is an in-memory Directory with setters for seeding.
type MemoryDirectory struct {
	mu       sync.RWMutex
	managers map[string]string
	teams    map[string]*memoryTeam
	profiles map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		managers: make(map[string]string),
		teams:    make(map[string]*memoryTeam),
		profiles: make(map[string]string),
	}
}

func (d *MemoryDirectory) AddProject(projectID, managerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.managers[projectID] = managerID
}

func (d *MemoryDirectory) AddTeam(teamID, projectID, leadID string, members ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	team := &memoryTeam{projectID: projectID, leadID: leadID, members: make(map[string]bool)}
	for _, m := range members {
		team.members[m] = true
	}
	d.teams[teamID] = team
}

func (d *MemoryDirectory) LinkProfile(userID, login string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[login] = userID
}

func (d *MemoryDirectory) ProjectManager(ctx context.Context, projectID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	managerID, ok := d.managers[projectID]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "project %s", projectID)
	}
	return managerID, nil
}

func (d *MemoryDirectory) TeamLeads(ctx context.Context, projectID, memberID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var leads []string
	for _, team := range d.teams {
		if team.projectID == projectID && team.members[memberID] {
			leads = append(leads, team.leadID)
		}
	}
	sort.Strings(leads)
	return leads, nil
}

func (d *MemoryDirectory) UserIDByExternalLogin(ctx context.Context, login string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	userID, ok := d.profiles[login]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "profile %s", login)
	}
	return userID, nil
}

package database

import (
	"context"
	"fmt"
	"strings"
)

// Caches are lazy, process-local lookup tables over the naming tables.
// Each cache fills itself from a single query on first use and must be
// invalidated by writes touching its backing table. Caches never cross
// transactions: they are read outside of any open transaction.
type Caches struct {
	store *Store

	pulsarAliases    map[string]int64 // lowercased alias -> pulsar id
	pulsarNames      map[int64]string
	telescopeAliases map[string]int64 // lowercased alias -> telescope id
	obsSystemNames   map[string]int64
	userNames        map[string]int64
}

// NewCaches creates empty caches over the store.
func NewCaches(store *Store) *Caches {
	return &Caches{store: store}
}

// InvalidatePulsars drops the pulsar lookup tables.
func (c *Caches) InvalidatePulsars() {
	c.pulsarAliases = nil
	c.pulsarNames = nil
}

// InvalidateTelescopes drops the telescope lookup table.
func (c *Caches) InvalidateTelescopes() {
	c.telescopeAliases = nil
}

// InvalidateObsSystems drops the observing-system lookup table.
func (c *Caches) InvalidateObsSystems() {
	c.obsSystemNames = nil
}

// InvalidateUsers drops the user lookup table.
func (c *Caches) InvalidateUsers() {
	c.userNames = nil
}

func (c *Caches) loadPulsars(ctx context.Context) error {
	aliases, err := c.store.ListPulsarAliases(ctx)
	if err != nil {
		return err
	}
	pulsars, err := c.store.ListPulsars(ctx)
	if err != nil {
		return err
	}

	c.pulsarAliases = make(map[string]int64, len(aliases))
	for _, a := range aliases {
		c.pulsarAliases[strings.ToLower(a.Alias)] = a.PulsarID
	}
	c.pulsarNames = make(map[int64]string, len(pulsars))
	for _, p := range pulsars {
		c.pulsarNames[p.ID] = p.Name
	}
	return nil
}

// PulsarID resolves a pulsar name or alias (case-insensitive).
func (c *Caches) PulsarID(ctx context.Context, alias string) (int64, error) {
	if c.pulsarAliases == nil {
		if err := c.loadPulsars(ctx); err != nil {
			return 0, err
		}
	}
	id, ok := c.pulsarAliases[strings.ToLower(alias)]
	if !ok {
		return 0, fmt.Errorf("unrecognised pulsar: %q", alias)
	}
	return id, nil
}

// PulsarName returns the preferred display name for a pulsar id.
func (c *Caches) PulsarName(ctx context.Context, id int64) (string, error) {
	if c.pulsarNames == nil {
		if err := c.loadPulsars(ctx); err != nil {
			return "", err
		}
	}
	name, ok := c.pulsarNames[id]
	if !ok {
		return "", fmt.Errorf("unrecognised pulsar id: %d", id)
	}
	return name, nil
}

// TelescopeID resolves a telescope name or alias (case-insensitive).
func (c *Caches) TelescopeID(ctx context.Context, alias string) (int64, error) {
	if c.telescopeAliases == nil {
		aliases, err := c.store.ListTelescopeAliases(ctx)
		if err != nil {
			return 0, err
		}
		c.telescopeAliases = make(map[string]int64, len(aliases))
		for _, a := range aliases {
			c.telescopeAliases[strings.ToLower(a.Alias)] = a.TelescopeID
		}
	}
	id, ok := c.telescopeAliases[strings.ToLower(alias)]
	if !ok {
		return 0, fmt.Errorf("unrecognised telescope: %q", alias)
	}
	return id, nil
}

// ObsSystemID resolves an observing system by name.
func (c *Caches) ObsSystemID(ctx context.Context, name string) (int64, error) {
	if c.obsSystemNames == nil {
		systems, err := c.store.ListObsSystems(ctx)
		if err != nil {
			return 0, err
		}
		c.obsSystemNames = make(map[string]int64, len(systems))
		for _, o := range systems {
			c.obsSystemNames[strings.ToLower(o.Name)] = o.ID
		}
	}
	id, ok := c.obsSystemNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unrecognised observing system: %q", name)
	}
	return id, nil
}

// UserID resolves a username.
func (c *Caches) UserID(ctx context.Context, username string) (int64, error) {
	if c.userNames == nil {
		users, err := c.store.ListUsers(ctx)
		if err != nil {
			return 0, err
		}
		c.userNames = make(map[string]int64, len(users))
		for _, u := range users {
			c.userNames[strings.ToLower(u.Username)] = u.ID
		}
	}
	id, ok := c.userNames[strings.ToLower(username)]
	if !ok {
		return 0, fmt.Errorf("unrecognised user: %q", username)
	}
	return id, nil
}

package testutil

import (
	"context"
	"testing"

	"toaster/internal/database"
	"toaster/internal/model"
)

// Observatory is a seeded naming context: one telescope, one observing
// system, one pulsar, one operator user.
type Observatory struct {
	UserID      int64
	TelescopeID int64
	ObsSystemID int64
	PulsarID    int64
}

// SeedObservatory installs a minimal naming context: the Parkes
// telescope (code 7) with a PKS/DFB4 observing system, the pulsar
// J0437-4715, and an "operator" user.
func SeedObservatory(t *testing.T, store *database.Store) Observatory {
	t.Helper()
	ctx := context.Background()

	userID := SeedUser(t, store, "operator")

	telescopeID, err := store.InsertTelescope(ctx, &model.Telescope{
		Name:   "Parkes",
		Abbrev: "PKS",
		Code:   "7",
		ITRFX:  -4554231.5,
		ITRFY:  2816759.1,
		ITRFZ:  -3454036.3,
	})
	if err != nil {
		t.Fatalf("seeding telescope: %v", err)
	}
	for _, alias := range []string{"Parkes", "PKS", "7", "PARKES"} {
		if err := store.InsertTelescopeAlias(ctx, telescopeID, alias); err != nil {
			t.Fatalf("seeding telescope alias: %v", err)
		}
	}

	obsSystemID, err := store.InsertObsSystem(ctx, &model.ObsSystem{
		Name:        "PKS_DFB4",
		TelescopeID: telescopeID,
		Frontend:    "MULTI",
		Backend:     "DFB4",
		Clock:       "UTC(AUS)",
		Band:        "L",
	})
	if err != nil {
		t.Fatalf("seeding obssystem: %v", err)
	}

	pulsarID := SeedPulsar(t, store, "J0437-4715", "0437-4715")

	return Observatory{
		UserID:      userID,
		TelescopeID: telescopeID,
		ObsSystemID: obsSystemID,
		PulsarID:    pulsarID,
	}
}

// SeedUser inserts an active user with a dummy password hash.
func SeedUser(t *testing.T, store *database.Store, username string) int64 {
	t.Helper()
	id, err := store.InsertUser(context.Background(), &model.User{
		Username:     username,
		RealName:     username,
		Email:        username + "@example.org",
		PasswordHash: "x",
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return id
}

// SeedPulsar inserts a pulsar with its name and extra aliases.
func SeedPulsar(t *testing.T, store *database.Store, name string, aliases ...string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.InsertPulsar(ctx, name)
	if err != nil {
		t.Fatalf("seeding pulsar %s: %v", name, err)
	}
	for _, alias := range append([]string{name}, aliases...) {
		if err := store.InsertPulsarAlias(ctx, id, alias); err != nil {
			t.Fatalf("seeding pulsar alias %s: %v", alias, err)
		}
	}
	return id
}

package toaster

import (
	"context"
	"fmt"
	"sort"

	"toaster/internal/database"
)

// ConflictPolicy selects how TOA conflicts are handled after
// selection.
type ConflictPolicy string

const (
	// PolicyStrict errors on any coherence violation.
	PolicyStrict ConflictPolicy = "strict"
	// PolicyTolerant keeps the one-process-per-rawfile rule an error
	// but downgrades template and parfile conflicts to warnings.
	PolicyTolerant ConflictPolicy = "tolerant"
	// PolicyNewest keeps only the newest process per raw file and
	// warns as tolerant does.
	PolicyNewest ConflictPolicy = "newest"
)

// ParseConflictPolicy validates a policy string.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(s); p {
	case PolicyStrict, PolicyTolerant, PolicyNewest:
		return p, nil
	default:
		return "", fmt.Errorf("%w: conflict policy %q", ErrUnrecognised, s)
	}
}

// Selection is the user-facing form of the TOA predicates: names and
// aliases instead of ids.
type Selection struct {
	Pulsar       string
	Telescopes   []string
	Backends     []string
	Manipulators []string
	StartMJD     *float64
	EndMJD       *float64
	TOAIDs       []int64
	ProcessIDs   []int64

	// AllowMultiplePulsars opts in to cross-pulsar selections under
	// the tolerant and newest policies.
	AllowMultiplePulsars bool
}

// SelectTOAs resolves the selection, queries the store, and applies
// the conflict policy.
func (s *Service) SelectTOAs(ctx context.Context, sel Selection, policy ConflictPolicy) ([]database.TOAInfo, error) {
	crit := database.TOACriteria{
		Backends:     sel.Backends,
		Manipulators: sel.Manipulators,
		StartMJD:     sel.StartMJD,
		EndMJD:       sel.EndMJD,
		TOAIDs:       sel.TOAIDs,
		ProcessIDs:   sel.ProcessIDs,
	}

	if sel.Pulsar != "" {
		id, err := s.caches.PulsarID(ctx, sel.Pulsar)
		if err != nil {
			return nil, fmt.Errorf("%w: pulsar %q", ErrUnrecognised, sel.Pulsar)
		}
		crit.PulsarID = &id
	}
	for _, t := range sel.Telescopes {
		id, err := s.caches.TelescopeID(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("%w: telescope %q", ErrUnrecognised, t)
		}
		crit.TelescopeIDs = append(crit.TelescopeIDs, id)
	}

	infos, err := s.store.SelectTOAs(ctx, crit)
	if err != nil {
		return nil, err
	}
	return s.applyPolicy(infos, policy, sel.AllowMultiplePulsars)
}

// applyPolicy enforces timfile coherence over a selected set.
func (s *Service) applyPolicy(infos []database.TOAInfo, policy ConflictPolicy, allowMultiplePulsars bool) ([]database.TOAInfo, error) {
	if len(infos) == 0 {
		return infos, nil
	}

	if err := s.checkSinglePulsar(infos, policy, allowMultiplePulsars); err != nil {
		return nil, err
	}

	if policy == PolicyNewest {
		infos = newestProcessPerRawfile(infos)
	}

	if err := s.checkOneProcessPerRawfile(infos); err != nil {
		return nil, err
	}
	if err := s.checkTemplateHomogeneity(infos, policy); err != nil {
		return nil, err
	}
	if err := s.checkParfileHomogeneity(infos, policy); err != nil {
		return nil, err
	}
	if err := s.checkNotSuperseded(infos, policy); err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *Service) checkSinglePulsar(infos []database.TOAInfo, policy ConflictPolicy, allow bool) error {
	pulsars := make(map[int64]string)
	for i := range infos {
		pulsars[infos[i].TOA.PulsarID] = infos[i].PulsarName
	}
	if len(pulsars) <= 1 {
		return nil
	}
	if policy != PolicyStrict && allow {
		return s.warner.Warnf("selection spans %d pulsars", len(pulsars))
	}
	return fmt.Errorf("%w: selection spans %d pulsars", ErrConflictingTOAs, len(pulsars))
}

// newestProcessPerRawfile keeps, for each raw file, only the TOAs of
// its most recently added process.
func newestProcessPerRawfile(infos []database.TOAInfo) []database.TOAInfo {
	ordered := make([]database.TOAInfo, len(infos))
	copy(ordered, infos)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ProcessAddedAt.Equal(ordered[j].ProcessAddedAt) {
			return ordered[i].ProcessAddedAt.After(ordered[j].ProcessAddedAt)
		}
		return ordered[i].ProcessID > ordered[j].ProcessID
	})

	chosen := make(map[int64]int64) // rawfile id -> winning process id
	for i := range ordered {
		if _, ok := chosen[ordered[i].RawfileID]; !ok {
			chosen[ordered[i].RawfileID] = ordered[i].ProcessID
		}
	}

	var kept []database.TOAInfo
	for i := range infos {
		if chosen[infos[i].RawfileID] == infos[i].ProcessID {
			kept = append(kept, infos[i])
		}
	}
	return kept
}

func (s *Service) checkOneProcessPerRawfile(infos []database.TOAInfo) error {
	processes := make(map[int64]map[int64]bool)
	for i := range infos {
		if processes[infos[i].RawfileID] == nil {
			processes[infos[i].RawfileID] = make(map[int64]bool)
		}
		processes[infos[i].RawfileID][infos[i].ProcessID] = true
	}
	for rawID, procs := range processes {
		if len(procs) > 1 {
			return fmt.Errorf("%w: rawfile %d contributes TOAs from %d different processes",
				ErrConflictingTOAs, rawID, len(procs))
		}
	}
	return nil
}

func (s *Service) checkTemplateHomogeneity(infos []database.TOAInfo, policy ConflictPolicy) error {
	templates := make(map[int64]map[int64]bool) // obssystem id -> template ids
	for i := range infos {
		if templates[infos[i].TOA.ObsSystemID] == nil {
			templates[infos[i].TOA.ObsSystemID] = make(map[int64]bool)
		}
		templates[infos[i].TOA.ObsSystemID][infos[i].TemplateID] = true
	}
	for obsID, tmpls := range templates {
		if len(tmpls) <= 1 {
			continue
		}
		if policy == PolicyStrict {
			return fmt.Errorf("%w: observing system %d mixes %d templates",
				ErrConflictingTOAs, obsID, len(tmpls))
		}
		if err := s.warner.Warnf("observing system %d mixes %d templates", obsID, len(tmpls)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkParfileHomogeneity(infos []database.TOAInfo, policy ConflictPolicy) error {
	parfiles := make(map[int64]bool)
	for i := range infos {
		if infos[i].ProcessParfileID.Valid {
			parfiles[infos[i].ProcessParfileID.Int64] = true
		}
	}
	if len(parfiles) <= 1 {
		return nil
	}
	if policy == PolicyStrict {
		return fmt.Errorf("%w: selection mixes %d parfiles", ErrConflictingTOAs, len(parfiles))
	}
	return s.warner.Warnf("selection mixes %d parfiles", len(parfiles))
}

func (s *Service) checkNotSuperseded(infos []database.TOAInfo, policy ConflictPolicy) error {
	for i := range infos {
		if !infos[i].ReplacementID.Valid {
			continue
		}
		if policy == PolicyStrict {
			return fmt.Errorf("%w: rawfile %d is superseded by %d",
				ErrConflictingTOAs, infos[i].RawfileID, infos[i].ReplacementID.Int64)
		}
		if err := s.warner.Warnf("rawfile %d is superseded by %d",
			infos[i].RawfileID, infos[i].ReplacementID.Int64); err != nil {
			return err
		}
	}
	return nil
}

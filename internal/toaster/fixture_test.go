package toaster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"toaster/internal/archive"
	"toaster/internal/database"
	"toaster/internal/testutil"
)

// fixture wires a Service over an in-memory store, a temp archive, and
// a scripted tool runner, with the standard naming context seeded.
type fixture struct {
	t        *testing.T
	store    *database.Store
	svc      *Service
	runner   *testutil.ScriptRunner
	versions *testutil.StubVersions
	clock    *testutil.StubClock
	obs      testutil.Observatory

	root    string // archive root
	srcDir  string // where test input files are written
	headers map[string]map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := testutil.NewTestStore(t)
	obs := testutil.SeedObservatory(t, store)

	root := t.TempDir()
	arch, err := archive.New(root, "{telescope}/{pulsar}/{backend}/{frontend}", archive.PolicyCopy)
	if err != nil {
		t.Fatalf("creating archive: %v", err)
	}

	runner := testutil.NewScriptRunner()
	headers := make(map[string]map[string]string)
	runner.Handle("vap", testutil.HeaderTool(headers))

	versions := testutil.FixedVersions()
	clock := testutil.FixedClock()

	svc, err := New(Options{
		Store:    store,
		Archive:  arch,
		Runner:   runner,
		Versions: versions,
		Clock:    clock,
		WarnMode: WarnAlways,
		TmpDir:   t.TempDir(),
		Operator: "operator",
	})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}

	return &fixture{
		t:        t,
		store:    store,
		svc:      svc,
		runner:   runner,
		versions: versions,
		clock:    clock,
		obs:      obs,
		root:     root,
		srcDir:   t.TempDir(),
		headers:  headers,
	}
}

// setWarnMode swaps the warning mode mid-test.
func (fx *fixture) setWarnMode(mode WarnMode) {
	fx.svc.warner = NewWarner(mode, NewNopLogger())
}

// writeFile places a test input file in the source directory and
// registers its scripted header values by base name.
func (fx *fixture) writeFile(name, content string, header map[string]string) string {
	fx.t.Helper()
	path := filepath.Join(fx.srcDir, name)
	if err := os.WriteFile(path, []byte(content), 0660); err != nil {
		fx.t.Fatalf("writing test file: %v", err)
	}
	if header != nil {
		fx.headers[name] = header
	}
	return path
}

// rawHeader returns the full header value set for an observation file
// of the given pulsar at the seeded observatory.
func rawHeader(pulsar string) map[string]string {
	return map[string]string{
		"name":    pulsar,
		"telescop": "Parkes",
		"rcvr":    "MULTI",
		"backend": "DFB4",
		"nbin":    "1024",
		"nchan":   "512",
		"npol":    "4",
		"nsub":    "8",
		"freq":    "1369.0",
		"bw":      "256.0",
		"dm":      "2.64",
		"rm":      "*",
		"length":  "3600.0",
		"intmjd":  "55000",
		"fmjd":    "0.5",
	}
}

// addRaw ingests a raw observation file with default headers.
func (fx *fixture) addRaw(name, content string) int64 {
	fx.t.Helper()
	path := fx.writeFile(name, content, rawHeader("J0437-4715"))
	id, err := fx.svc.AddRawfile(context.Background(), path)
	if err != nil {
		fx.t.Fatalf("AddRawfile(%s) error = %v", name, err)
	}
	return id
}

// addPar ingests a minimal valid parfile for J0437-4715.
func (fx *fixture) addPar(name string, master bool) int64 {
	fx.t.Helper()
	content := fmt.Sprintf("PSRJ J0437-4715\nF0 173.687946\nDM 2.64\n# %s\n", name)
	path := fx.writeFile(name, content, nil)
	id, err := fx.svc.AddParfile(context.Background(), path, master)
	if err != nil {
		fx.t.Fatalf("AddParfile(%s) error = %v", name, err)
	}
	return id
}

// addTemplate ingests a template for J0437-4715 on the seeded system.
func (fx *fixture) addTemplate(name, content, comment string, master bool) int64 {
	fx.t.Helper()
	header := map[string]string{
		"name":    "J0437-4715",
		"telescop": "Parkes",
		"rcvr":    "MULTI",
		"backend": "DFB4",
		"nbin":    "1024",
	}
	path := fx.writeFile(name, content, header)
	id, err := fx.svc.AddTemplate(context.Background(), path, comment, master)
	if err != nil {
		fx.t.Fatalf("AddTemplate(%s) error = %v", name, err)
	}
	return id
}

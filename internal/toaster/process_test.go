package toaster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"toaster/internal/model"
)

// preparedRun ingests one observation with a master parfile and
// template, scripts the metadata editor and the TOA generator, and
// returns the rawfile id.
func preparedRun(fx *fixture) int64 {
	fx.t.Helper()

	rawID := fx.addRaw("obs1.ar", "raw archive bytes")
	fx.addPar("master.par", false)
	fx.addTemplate("std.tmpl", "profile bytes", "analytic standard", false)

	// The manipulated copy carries the same shape as the input.
	fx.headers["manipulated.ar"] = map[string]string{"nchan": "512", "nsub": "8"}

	fx.runner.HandleOK("pam")
	fx.runner.Handle("pat", func([]string) (string, string, error) {
		return "manipulated.ar 1369.000000 55000.5123456789 1.235 7" +
			" -gof 1.05 -bw 256.0 -length 3600.0 -nbin 1024\n" +
			"manipulated.ar 1369.000000 55000.6123456789 2.470 7" +
			" -gof 0.98 -bw 256.0 -length 3600.0 -nbin 1024\n", "", nil
	})
	return rawID
}

func TestProcess(t *testing.T) {
	t.Run("records the run and its arrival times", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		res, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if len(res.TOAIDs) != 2 {
			t.Fatalf("TOA count = %d, want 2", len(res.TOAIDs))
		}

		p, err := fx.store.GetProcessByID(context.Background(), res.ProcessID)
		if err != nil {
			t.Fatalf("GetProcessByID() error = %v", err)
		}
		if p.RawfileID != rawID {
			t.Errorf("RawfileID = %d, want %d", p.RawfileID, rawID)
		}
		if !p.ParfileID.Valid {
			t.Error("ParfileID not recorded; master parfile expected")
		}
		if p.Manipulator != "nothing" {
			t.Errorf("Manipulator = %q, want nothing", p.Manipulator)
		}
		if p.NChan != 512 || p.NSub != 8 {
			t.Errorf("shape = (%d, %d), want (512, 8)", p.NChan, p.NSub)
		}
		if p.VersionID != res.VersionID {
			t.Errorf("VersionID = %d, want %d", p.VersionID, res.VersionID)
		}

		infos, err := fx.store.SelectTOAsByIDs(context.Background(), res.TOAIDs)
		if err != nil {
			t.Fatalf("SelectTOAsByIDs() error = %v", err)
		}
		if len(infos) != 2 {
			t.Fatalf("selected %d TOAs, want 2", len(infos))
		}
		first := infos[0]
		if first.IMJD != 55000 || first.FMJD != 0.5123456789 {
			t.Errorf("MJD = %d + %v, want 55000 + 0.5123456789", first.IMJD, first.FMJD)
		}
		if first.Freq != 1369.0 {
			t.Errorf("Freq = %v, want 1369.0", first.Freq)
		}
		if !first.GoF.Valid || first.GoF.Float64 != 1.05 {
			t.Errorf("GoF = %+v, want 1.05", first.GoF)
		}
		if !first.NBin.Valid || first.NBin.Int64 != 1024 {
			t.Errorf("NBin = %+v, want 1024", first.NBin)
		}

		// The layout tree links back to the per-process plot directory.
		link := filepath.Join(fx.root, "diagnostics", "Parkes", "J0437-4715", "DFB4", "MULTI",
			fmt.Sprintf("procid_%d", res.ProcessID))
		target, err := os.Readlink(link)
		if err != nil {
			t.Fatalf("reading process plot link: %v", err)
		}
		want := filepath.Join(fx.root, "diagnostics", "processes",
			strconv.FormatInt(res.ProcessID, 10))
		if target != want {
			t.Errorf("plot link target = %q, want %q", target, want)
		}
	})

	t.Run("scrunch manipulator is invoked with its flags", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "scrunch",
			ManipArgs:   map[string]string{"nchan": "1", "nsub": "1"},
		})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}

		// One ephemeris install and one reduction.
		pamCalls := fx.runner.CallsTo("pam")
		if len(pamCalls) != 2 {
			t.Fatalf("pam invoked %d times, want 2", len(pamCalls))
		}
		reduction := pamCalls[1].Args
		var sawNChan, sawNSub bool
		for _, a := range reduction {
			if a == "--setnchn" {
				sawNChan = true
			}
			if a == "--setnsub" {
				sawNSub = true
			}
		}
		if !sawNChan || !sawNSub {
			t.Errorf("reduction args = %v, want --setnchn and --setnsub", reduction)
		}
	})

	t.Run("solve mode runs without an ephemeris", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		res, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
			Solve:       true,
		})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		p, err := fx.store.GetProcessByID(context.Background(), res.ProcessID)
		if err != nil {
			t.Fatalf("GetProcessByID() error = %v", err)
		}
		if p.ParfileID.Valid {
			t.Errorf("ParfileID = %+v, want null in solve mode", p.ParfileID)
		}
		if calls := fx.runner.CallsTo("pam"); len(calls) != 0 {
			t.Errorf("pam invoked %d times in solve mode, want 0", len(calls))
		}
	})

	t.Run("missing master parfile aborts", func(t *testing.T) {
		fx := newFixture(t)

		rawID := fx.addRaw("obs1.ar", "raw archive bytes")
		fx.addTemplate("std.tmpl", "profile bytes", "analytic standard", false)

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if !errors.Is(err, ErrMasterMissing) {
			t.Errorf("Process() error = %v, want ErrMasterMissing", err)
		}
	})

	t.Run("missing master template aborts", func(t *testing.T) {
		fx := newFixture(t)

		rawID := fx.addRaw("obs1.ar", "raw archive bytes")
		fx.addPar("master.par", false)

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if !errors.Is(err, ErrMasterMissing) {
			t.Errorf("Process() error = %v, want ErrMasterMissing", err)
		}
	})

	t.Run("tool version drift aborts before any write", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		fx.versions.Sequence = []model.Version{
			{PipelineHash: "aaaa", ToolHash: "bbbb", Tempo2Revision: "2024.02.1"},
			{PipelineHash: "aaaa", ToolHash: "cccc", Tempo2Revision: "2024.02.1"},
		}

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if !errors.Is(err, ErrVersionChanged) {
			t.Fatalf("Process() error = %v, want ErrVersionChanged", err)
		}

		p, err := fx.store.GetProcessByID(context.Background(), 1)
		if err != nil {
			t.Fatalf("GetProcessByID() error = %v", err)
		}
		if p != nil {
			t.Error("process row written despite version drift")
		}
	})

	t.Run("tampered archive aborts", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		raw, err := fx.store.GetRawfileByID(context.Background(), rawID)
		if err != nil {
			t.Fatalf("GetRawfileByID() error = %v", err)
		}
		if err := os.Chmod(raw.Path, 0640); err != nil {
			t.Fatalf("chmod: %v", err)
		}
		if err := os.WriteFile(raw.Path, []byte("tampered"), 0640); err != nil {
			t.Fatalf("rewriting archived file: %v", err)
		}

		_, err = fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if !errors.Is(err, ErrFile) {
			t.Errorf("Process() error = %v, want ErrFile", err)
		}
	})

	t.Run("unknown manipulator is rejected", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "fold",
		})
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("Process() error = %v, want ErrUnrecognised", err)
		}
	})

	t.Run("foreign site code escalates under error mode", func(t *testing.T) {
		fx := newFixture(t)
		rawID := preparedRun(fx)
		fx.setWarnMode(WarnError)

		fx.runner.Handle("pat", func([]string) (string, string, error) {
			return "manipulated.ar 1369.000000 55000.5123456789 1.235 3\n", "", nil
		})
		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   rawID,
			Manipulator: "nothing",
		})
		if err == nil {
			t.Error("Process() expected escalated warning for foreign site code")
		}
	})

	t.Run("unknown rawfile is rejected", func(t *testing.T) {
		fx := newFixture(t)

		_, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   999,
			Manipulator: "nothing",
		})
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("Process() error = %v, want ErrUnrecognised", err)
		}
	})
}

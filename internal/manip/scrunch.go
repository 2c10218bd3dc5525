package manip

import (
	"context"
	"fmt"

	"toaster/internal/tools"
)

func init() {
	Register(&scrunch{})
	Register(&nothing{})
}

// scrunch reduces an archive in frequency, time, and/or phase bins by
// invoking the external scruncher in place on a copy of the input.
type scrunch struct{}

func (*scrunch) Name() string { return "scrunch" }

func (*scrunch) Kwargs() []Kwarg {
	return []Kwarg{
		{Name: "nsub", Help: "target number of sub-integrations"},
		{Name: "tsub", Help: "target sub-integration length (s)"},
		{Name: "nchan", Help: "target number of frequency channels"},
		{Name: "nbin", Help: "target number of profile bins"},
	}
}

func (s *scrunch) ArgString(kwargs map[string]string) (string, error) {
	return argString(kwargs, s.Kwargs())
}

// scruncherFlags maps kwargs to the scruncher's command-line flags.
var scruncherFlags = map[string]string{
	"nsub":  "--setnsub",
	"tsub":  "--settsub",
	"nchan": "--setnchn",
	"nbin":  "--setnbin",
}

func (s *scrunch) Run(ctx context.Context, runner tools.Runner, inputs []string, outPath string, kwargs map[string]string) error {
	input, err := requireOneInput(inputs)
	if err != nil {
		return err
	}
	if _, err := s.ArgString(kwargs); err != nil {
		return err
	}
	if len(kwargs) == 0 {
		return fmt.Errorf("scrunch requires at least one of nsub, tsub, nchan, nbin")
	}
	if _, hasNsub := kwargs["nsub"]; hasNsub {
		if _, hasTsub := kwargs["tsub"]; hasTsub {
			return fmt.Errorf("nsub and tsub are mutually exclusive")
		}
	}

	if err := copyFile(input, outPath); err != nil {
		return err
	}

	args := []string{"-m"}
	for _, kw := range []string{"nsub", "tsub", "nchan", "nbin"} {
		if v, ok := kwargs[kw]; ok {
			args = append(args, scruncherFlags[kw], v)
		}
	}
	args = append(args, outPath)

	if _, _, err := runner.Run(ctx, tools.Scruncher, args...); err != nil {
		return fmt.Errorf("scrunching: %w", err)
	}
	return nil
}

// nothing passes the input archive through unchanged.
type nothing struct{}

func (*nothing) Name() string { return "nothing" }

func (*nothing) Kwargs() []Kwarg { return nil }

func (n *nothing) ArgString(kwargs map[string]string) (string, error) {
	return argString(kwargs, nil)
}

func (*nothing) Run(_ context.Context, _ tools.Runner, inputs []string, outPath string, kwargs map[string]string) error {
	input, err := requireOneInput(inputs)
	if err != nil {
		return err
	}
	if len(kwargs) > 0 {
		return fmt.Errorf("nothing accepts no kwargs")
	}
	return copyFile(input, outPath)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"toaster/internal/toa"
	"toaster/internal/toaster"
)

// process command

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the processing engine",
}

var processRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate TOAs from a raw file",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawID, _ := cmd.Flags().GetInt64("raw")
		parID, _ := cmd.Flags().GetInt64("par")
		templateID, _ := cmd.Flags().GetInt64("template")
		manipulator, _ := cmd.Flags().GetString("manip")
		manipArgs, _ := cmd.Flags().GetStringSlice("arg")
		solve, _ := cmd.Flags().GetBool("solve")

		if rawID == 0 {
			return fmt.Errorf("--raw is required")
		}
		kwargs, err := parseKeyValues(manipArgs)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "Process")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().Process(cmd.Context(), toaster.ProcessRequest{
			RawfileID:   rawID,
			ParfileID:   parID,
			TemplateID:  templateID,
			Manipulator: manipulator,
			ManipArgs:   kwargs,
			Solve:       solve,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Process %d produced %d TOA(s)\n", result.ProcessID, len(result.TOAIDs))
		return nil
	},
}

// toa command

var toaCmd = &cobra.Command{
	Use:   "toa",
	Short: "Query TOAs",
}

var toaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List TOAs matching the selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, policy, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "SelectTOAs")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Service().SelectTOAs(cmd.Context(), sel, policy)
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Pulsar", "MJD", "Freq (MHz)", "Error (µs)", "Site", "Obs System", "Process"})
		for _, info := range infos {
			t.AppendRow(table.Row{
				info.TOA.ID, info.PulsarName,
				fmt.Sprintf("%d%s", info.IMJD, strings.TrimPrefix(fmt.Sprintf("%.9f", info.FMJD), "0")),
				info.Freq, info.ErrorUS, info.TelescopeCode, info.ObsSystemName, info.ProcessID,
			})
		}
		t.Render()
		return nil
	},
}

// timfile command

var timfileCmd = &cobra.Command{
	Use:   "timfile",
	Short: "Manage timfiles",
}

var timfileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Bundle selected TOAs into a new timfile",
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		sel, policy, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "CreateTimfile")
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Service().SelectTOAs(cmd.Context(), sel, policy)
		if err != nil {
			return err
		}
		id, err := a.Service().CreateTimfile(cmd.Context(), infos, comment, strings.Join(os.Args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Created timfile %d with %d TOA(s)\n", id, len(infos))
		return nil
	},
}

var timfileEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Add or remove TOAs from a timfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addIDs, _ := cmd.Flags().GetInt64Slice("add")
		removeIDs, _ := cmd.Flags().GetInt64Slice("remove")
		comment, _ := cmd.Flags().GetString("comment")

		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "EditTimfile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().EditTimfile(cmd.Context(), id, addIDs, removeIDs, comment); err != nil {
			return err
		}
		fmt.Printf("Edited timfile %d (+%d, -%d)\n", id, len(addIDs), len(removeIDs))
		return nil
	},
}

var timfileWriteCmd = &cobra.Command{
	Use:   "write ID [FILE]",
	Short: "Write a timfile to disk (or stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		style, _ := cmd.Flags().GetString("format")
		flagSpecs, _ := cmd.Flags().GetStringSlice("flag")

		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		flags, err := parseFlagSpecs(flagSpecs)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "WriteTimfile")
		if err != nil {
			return err
		}
		defer a.Close()

		out := os.Stdout
		if len(args) == 2 {
			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		return a.Service().WriteTimfile(cmd.Context(), id, out, style, flags)
	},
}

var timfileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List timfiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListTimfiles")
		if err != nil {
			return err
		}
		defer a.Close()

		timfiles, err := a.Service().Store().ListTimfiles(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Pulsar ID", "Added", "Comments"})
		for _, tf := range timfiles {
			t.AppendRow(table.Row{tf.ID, tf.PulsarID,
				tf.AddedAt.Format("2006-01-02 15:04:05"), tf.Comments})
		}
		t.Render()
		return nil
	},
}

// addSelectionFlags installs the shared TOA selection flags.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("pulsar", "p", "", "Pulsar name or alias")
	cmd.Flags().StringSlice("telescope", nil, "Telescope names (any of)")
	cmd.Flags().StringSlice("backend", nil, "Backend names (any of)")
	cmd.Flags().StringSlice("manipulator", nil, "Manipulator names (any of)")
	cmd.Flags().Float64("start-mjd", 0, "Earliest MJD")
	cmd.Flags().Float64("end-mjd", 0, "Latest MJD")
	cmd.Flags().Int64Slice("toa", nil, "Explicit TOA ids")
	cmd.Flags().Int64Slice("process", nil, "Explicit process ids")
	cmd.Flags().String("policy", "strict", "Conflict policy: strict, tolerant, or newest")
	cmd.Flags().Bool("allow-multiple-pulsars", false, "Permit cross-pulsar selections (tolerant/newest only)")
}

func selectionFromFlags(cmd *cobra.Command) (toaster.Selection, toaster.ConflictPolicy, error) {
	var sel toaster.Selection
	sel.Pulsar, _ = cmd.Flags().GetString("pulsar")
	sel.Telescopes, _ = cmd.Flags().GetStringSlice("telescope")
	sel.Backends, _ = cmd.Flags().GetStringSlice("backend")
	sel.Manipulators, _ = cmd.Flags().GetStringSlice("manipulator")
	sel.TOAIDs, _ = cmd.Flags().GetInt64Slice("toa")
	sel.ProcessIDs, _ = cmd.Flags().GetInt64Slice("process")
	sel.AllowMultiplePulsars, _ = cmd.Flags().GetBool("allow-multiple-pulsars")

	if cmd.Flags().Changed("start-mjd") {
		v, _ := cmd.Flags().GetFloat64("start-mjd")
		sel.StartMJD = &v
	}
	if cmd.Flags().Changed("end-mjd") {
		v, _ := cmd.Flags().GetFloat64("end-mjd")
		sel.EndMJD = &v
	}

	policyName, _ := cmd.Flags().GetString("policy")
	policy, err := toaster.ParseConflictPolicy(policyName)
	if err != nil {
		return toaster.Selection{}, "", err
	}
	return sel, policy, nil
}

// parseKeyValues parses repeated "key=value" arguments.
func parseKeyValues(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	kv := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", spec)
		}
		kv[key] = value
	}
	return kv, nil
}

// parseFlagSpecs parses repeated "name=template" output flag specs.
func parseFlagSpecs(specs []string) ([]toa.Flag, error) {
	var flags []toa.Flag
	for _, spec := range specs {
		name, tmpl, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=template, got %q", spec)
		}
		flags = append(flags, toa.Flag{Name: name, Template: tmpl})
	}
	return flags, nil
}

func init() {
	processCmd.AddCommand(processRunCmd)
	processRunCmd.Flags().Int64("raw", 0, "Rawfile id (required)")
	processRunCmd.Flags().Int64("par", 0, "Parfile id (default: the pulsar's master)")
	processRunCmd.Flags().Int64("template", 0, "Template id (default: the pair's master)")
	processRunCmd.Flags().String("manip", "nothing", "Manipulator name")
	processRunCmd.Flags().StringSlice("arg", nil, "Manipulator kwargs (key=value)")
	processRunCmd.Flags().Bool("solve", false, "Run without installing an ephemeris")

	toaCmd.AddCommand(toaListCmd)
	addSelectionFlags(toaListCmd)

	timfileCmd.AddCommand(timfileCreateCmd)
	addSelectionFlags(timfileCreateCmd)
	timfileCreateCmd.Flags().StringP("comment", "m", "", "Description of the timfile (required)")
	timfileCmd.AddCommand(timfileEditCmd)
	timfileEditCmd.Flags().Int64Slice("add", nil, "TOA ids to add")
	timfileEditCmd.Flags().Int64Slice("remove", nil, "TOA ids to remove")
	timfileEditCmd.Flags().StringP("comment", "m", "", "Replacement comment")
	timfileCmd.AddCommand(timfileWriteCmd)
	timfileWriteCmd.Flags().String("format", "tempo2", "Output style: tempo2 or princeton")
	timfileWriteCmd.Flags().StringSlice("flag", nil, "Output flags (name=template)")
	timfileCmd.AddCommand(timfileListCmd)

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(toaCmd)
	rootCmd.AddCommand(timfileCmd)
}

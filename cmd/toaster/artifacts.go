package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"toaster/internal/database"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing id %q: %w", arg, err)
	}
	return id, nil
}

// raw command

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Manage raw observation files",
}

var rawAddCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Ingest raw observation files into the archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddRawfile")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			id, err := a.Service().AddRawfile(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("Ingested %s (rawfile id %d)\n", path, id)
		}
		return nil
	},
}

var rawListCmd = &cobra.Command{
	Use:   "list PULSAR",
	Short: "List raw files for a pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListRawfiles")
		if err != nil {
			return err
		}
		defer a.Close()

		pulsarID, err := a.Service().Caches().PulsarID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		files, err := a.Service().Store().ListRawfilesForPulsar(cmd.Context(), pulsarID)
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "MD5", "MJD", "Length (s)", "Added", "Superseded By"})
		for _, r := range files {
			mjd, length, superseded := "-", "-", "-"
			if r.MJD.Valid {
				mjd = strconv.FormatFloat(r.MJD.Float64, 'f', 6, 64)
			}
			if r.Length.Valid {
				length = strconv.FormatFloat(r.Length.Float64, 'f', 1, 64)
			}
			if r.ReplacementID.Valid {
				superseded = strconv.FormatInt(r.ReplacementID.Int64, 10)
			}
			t.AppendRow(table.Row{r.ID, r.MD5, mjd, length,
				r.AddedAt.Format("2006-01-02 15:04:05"), superseded})
		}
		t.Render()
		return nil
	},
}

var rawReplaceCmd = &cobra.Command{
	Use:   "replace OBSOLETE_ID FILE",
	Short: "Supersede a raw file with a corrected observation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")

		obsoleteID, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ReplaceRawfile")
		if err != nil {
			return err
		}
		defer a.Close()

		newID, err := a.Service().ReplaceRawfile(cmd.Context(), obsoleteID, args[1], comment)
		if err != nil {
			return err
		}
		fmt.Printf("Rawfile %d superseded by %d\n", obsoleteID, newID)
		return nil
	},
}

// par command

var parCmd = &cobra.Command{
	Use:   "par",
	Short: "Manage parfiles",
}

var parAddCmd = &cobra.Command{
	Use:   "add FILE...",
	Short: "Ingest parfiles into the archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		master, _ := cmd.Flags().GetBool("master")

		a, err := newApp(cmd.Context(), "AddParfile")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range args {
			id, err := a.Service().AddParfile(cmd.Context(), path, master)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			fmt.Printf("Ingested %s (parfile id %d)\n", path, id)
		}
		return nil
	},
}

var parRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Delete an unreferenced, non-master parfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "RemoveParfile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().RemoveParfile(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Removed parfile %d\n", id)
		return nil
	},
}

// template command

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage pulse-profile templates",
}

var templateAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Ingest a template into the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		comment, _ := cmd.Flags().GetString("comment")
		master, _ := cmd.Flags().GetBool("master")

		a, err := newApp(cmd.Context(), "AddTemplate")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Service().AddTemplate(cmd.Context(), args[0], comment, master)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %s (template id %d)\n", args[0], id)
		return nil
	},
}

// master command

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Manage master designations",
}

var masterParCmd = &cobra.Command{
	Use:   "par PARFILE_ID",
	Short: "Designate a parfile as master for its pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), "SetMasterParfile")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Service().SetMasterParfile(cmd.Context(), id)
	},
}

var masterParClearCmd = &cobra.Command{
	Use:   "par-clear PULSAR",
	Short: "Clear the master parfile designation for a pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ClearMasterParfile")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Service().ClearMasterParfile(cmd.Context(), args[0])
	},
}

var masterTemplateCmd = &cobra.Command{
	Use:   "template TEMPLATE_ID",
	Short: "Designate a template as master for its pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), "SetMasterTemplate")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Service().SetMasterTemplate(cmd.Context(), id)
	},
}

var masterTimfileCmd = &cobra.Command{
	Use:   "timfile TIMFILE_ID",
	Short: "Designate a timfile as master for its pulsar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), "SetMasterTimfile")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Service().SetMasterTimfile(cmd.Context(), id)
	},
}

// diagnostic command

var diagnosticCmd = &cobra.Command{
	Use:   "diagnostic",
	Short: "Manage diagnostics",
}

var diagnosticAddCmd = &cobra.Command{
	Use:   "add {raw|process} ID NAME...",
	Short: "Compute and record named diagnostics",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var owner database.DiagnosticOwner
		switch args[0] {
		case "raw":
			owner = database.OwnerRawfile
		case "process":
			owner = database.OwnerProcess
		default:
			return fmt.Errorf("unknown diagnostic owner %q (want raw or process)", args[0])
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "AddDiagnostics")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().AddDiagnostics(cmd.Context(), owner, id, args[2:]); err != nil {
			return err
		}
		fmt.Printf("Recorded %d diagnostic(s) for %s %d\n", len(args)-2, args[0], id)
		return nil
	},
}

func init() {
	rawCmd.AddCommand(rawAddCmd)
	rawCmd.AddCommand(rawListCmd)
	rawCmd.AddCommand(rawReplaceCmd)
	rawReplaceCmd.Flags().StringP("comment", "m", "", "Reason for the replacement (required)")

	parCmd.AddCommand(parAddCmd)
	parAddCmd.Flags().Bool("master", false, "Designate as master for its pulsar")
	parCmd.AddCommand(parRemoveCmd)

	templateCmd.AddCommand(templateAddCmd)
	templateAddCmd.Flags().StringP("comment", "m", "", "Description of the template (required)")
	templateAddCmd.Flags().Bool("master", false, "Designate as master for its pair")

	masterCmd.AddCommand(masterParCmd)
	masterCmd.AddCommand(masterParClearCmd)
	masterCmd.AddCommand(masterTemplateCmd)
	masterCmd.AddCommand(masterTimfileCmd)

	diagnosticCmd.AddCommand(diagnosticAddCmd)

	rootCmd.AddCommand(rawCmd)
	rootCmd.AddCommand(parCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(diagnosticCmd)
}

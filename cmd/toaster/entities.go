package main

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"toaster/internal/model"
)

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// pulsar command

var pulsarCmd = &cobra.Command{
	Use:   "pulsar",
	Short: "Manage pulsars",
}

var pulsarAddCmd = &cobra.Command{
	Use:   "add NAME [ALIAS]...",
	Short: "Register a pulsar",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddPulsar")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Service().AddPulsar(cmd.Context(), args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Printf("Added pulsar %s (id %d)\n", args[0], id)
		return nil
	},
}

var pulsarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pulsars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListPulsars")
		if err != nil {
			return err
		}
		defer a.Close()

		pulsars, err := a.Service().Store().ListPulsars(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Name"})
		for _, p := range pulsars {
			t.AppendRow(table.Row{p.ID, p.Name})
		}
		t.Render()
		return nil
	},
}

// telescope command

var telescopeCmd = &cobra.Command{
	Use:   "telescope",
	Short: "Manage telescopes",
}

var telescopeAddCmd = &cobra.Command{
	Use:   "add NAME ABBREV CODE ITRF_X ITRF_Y ITRF_Z [ALIAS]...",
	Short: "Register a telescope",
	Args:  cobra.MinimumNArgs(6),
	RunE: func(cmd *cobra.Command, args []string) error {
		var coords [3]float64
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(args[3+i], 64)
			if err != nil {
				return fmt.Errorf("parsing ITRF coordinate %q: %w", args[3+i], err)
			}
			coords[i] = v
		}

		a, err := newApp(cmd.Context(), "AddTelescope")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Service().AddTelescope(cmd.Context(), &model.Telescope{
			Name:   args[0],
			Abbrev: args[1],
			Code:   args[2],
			ITRFX:  coords[0],
			ITRFY:  coords[1],
			ITRFZ:  coords[2],
		}, args[6:])
		if err != nil {
			return err
		}
		fmt.Printf("Added telescope %s (id %d)\n", args[0], id)
		return nil
	},
}

var telescopeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List telescopes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListTelescopes")
		if err != nil {
			return err
		}
		defer a.Close()

		telescopes, err := a.Service().Store().ListTelescopes(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Name", "Abbrev", "Code", "ITRF X", "ITRF Y", "ITRF Z"})
		for _, tel := range telescopes {
			t.AppendRow(table.Row{tel.ID, tel.Name, tel.Abbrev, tel.Code, tel.ITRFX, tel.ITRFY, tel.ITRFZ})
		}
		t.Render()
		return nil
	},
}

// obssystem command

var obssystemCmd = &cobra.Command{
	Use:   "obssystem",
	Short: "Manage observing systems",
}

var obssystemAddCmd = &cobra.Command{
	Use:   "add NAME TELESCOPE FRONTEND BACKEND CLOCK [BAND]",
	Short: "Register an observing system",
	Args:  cobra.RangeArgs(5, 6),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddObsSystem")
		if err != nil {
			return err
		}
		defer a.Close()

		band := ""
		if len(args) == 6 {
			band = args[5]
		}
		id, err := a.Service().AddObsSystem(cmd.Context(),
			args[0], args[1], args[2], args[3], args[4], band)
		if err != nil {
			return err
		}
		fmt.Printf("Added observing system %s (id %d)\n", args[0], id)
		return nil
	},
}

var obssystemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List observing systems",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListObsSystems")
		if err != nil {
			return err
		}
		defer a.Close()

		systems, err := a.Service().Store().ListObsSystems(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Name", "Telescope ID", "Frontend", "Backend", "Clock", "Band"})
		for _, o := range systems {
			t.AppendRow(table.Row{o.ID, o.Name, o.TelescopeID, o.Frontend, o.Backend, o.Clock, o.Band})
		}
		t.Render()
		return nil
	},
}

// user command

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME [REAL_NAME] [EMAIL]",
	Short: "Register a user",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		a, err := newApp(cmd.Context(), "AddUser")
		if err != nil {
			return err
		}
		defer a.Close()

		realName, email := "", ""
		if len(args) > 1 {
			realName = args[1]
		}
		if len(args) > 2 {
			email = args[2]
		}
		id, err := a.Service().AddUser(cmd.Context(), args[0], realName, email, string(password), admin)
		if err != nil {
			return err
		}
		fmt.Printf("Added user %s (id %d)\n", args[0], id)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListUsers")
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := a.Service().Store().ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable(table.Row{"ID", "Username", "Real Name", "Email", "Active", "Admin"})
		for _, u := range users {
			t.AppendRow(table.Row{u.ID, u.Username, u.RealName, u.Email, u.Active, u.Admin})
		}
		t.Render()
		return nil
	},
}

var curatorAddCmd = &cobra.Command{
	Use:   "curator PULSAR [USERNAME]",
	Short: "Grant curation rights for a pulsar (no username: anyone)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "AddCurator")
		if err != nil {
			return err
		}
		defer a.Close()

		username := ""
		if len(args) == 2 {
			username = args[1]
		}
		if err := a.Service().AddCurator(cmd.Context(), args[0], username); err != nil {
			return err
		}
		fmt.Printf("Granted curation of %s\n", args[0])
		return nil
	},
}

func init() {
	pulsarCmd.AddCommand(pulsarAddCmd)
	pulsarCmd.AddCommand(pulsarListCmd)

	telescopeCmd.AddCommand(telescopeAddCmd)
	telescopeCmd.AddCommand(telescopeListCmd)

	obssystemCmd.AddCommand(obssystemAddCmd)
	obssystemCmd.AddCommand(obssystemListCmd)

	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Bool("admin", false, "Grant admin rights")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(curatorAddCmd)

	rootCmd.AddCommand(pulsarCmd)
	rootCmd.AddCommand(telescopeCmd)
	rootCmd.AddCommand(obssystemCmd)
	rootCmd.AddCommand(userCmd)
}

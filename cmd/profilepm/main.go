package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"profilepm/internal/app"
	"profilepm/internal/descriptor"
	"profilepm/internal/errs"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

// usageError prints usage for cmd and turns err into an exit status of 2.
func usageError(cmd *cobra.Command, err error) error {
	_ = cmd.Usage()
	return &exitError{code: 2, msg: err.Error()}
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		if kind := errs.KindOf(err); kind != "" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		var ex ExitCoder
		if errors.As(err, &ex) {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath  string
	installPath string
	logLevel    string
	jsonOutput  bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{
			ConfigPath:  g.configPath,
			InstallPath: g.installPath,
			LogLevel:    g.logLevel,
		})
	}

	cmd := &cobra.Command{
		Use:           "profilepm",
		Short:         "Provision external browser profiles into a local profile store",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError(cmd, errors.New("a command is required"))
		},
	}
	cmd.SetFlagErrorFunc(usageError)
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "trace|debug|info|warn|error|disabled")
	cmd.PersistentFlags().StringVar(&g.installPath, "install-path", "", "install root to use before any other candidate (env "+app.EnvInstallPath+")")

	cmd.AddCommand(newImportCmd(newSvc, &g.jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &g.jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &g.jsonOutput))
	cmd.AddCommand(newCandidatesCmd(newSvc, &g.jsonOutput))
	cmd.AddCommand(newVersionCmd(&g.jsonOutput))

	return cmd
}

func newImportCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var name string
	var o descriptor.Defaults
	var canvas, webgl, timezone, location, proxy string

	cmd := &cobra.Command{
		Use:     "import <source>",
		Aliases: []string{"add"},
		Short:   "Import a profile directory or archive into the store",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Canvas = descriptor.Mode(canvas)
			o.WebGL = descriptor.Mode(webgl)
			o.Timezone = descriptor.Mode(timezone)
			o.Location = descriptor.Mode(location)
			o.Proxy = descriptor.Mode(proxy)
			if err := o.ValidateModes(); err != nil {
				return &exitError{code: 2, msg: err.Error()}
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			res, err := svc.Import(cmd.Context(), app.ImportRequest{Source: args[0], Name: name, Overrides: o})
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("imported %s (%s, %d files, %s) into %s", res.Name, res.Format, res.Stats.Files, humanize.Bytes(uint64(res.Stats.Bytes)), res.Path)
			for _, rel := range res.Skipped {
				msg += "\n  skipped " + rel
			}
			return print(*jsonOutput, res, msg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "entry name (default imported_profile_<timestamp>)")
	f.StringVar(&o.Notes, "notes", "", "descriptor notes")
	f.StringVar(&o.Browser, "browser", "", "browser engine")
	f.StringVar(&o.OS, "os", "", "operating system")
	f.StringVar(&o.Navigator.UserAgent, "user-agent", "", "navigator user agent")
	f.StringVar(&o.Navigator.Platform, "platform", "", "navigator platform")
	f.StringVar(&o.Navigator.Language, "language", "", "navigator language")
	f.StringVar(&canvas, "canvas", "", "noise|real|none|manual")
	f.StringVar(&webgl, "webgl", "", "noise|real|none|manual")
	f.StringVar(&timezone, "timezone", "", "noise|real|none|manual")
	f.StringVar(&location, "location", "", "noise|real|none|manual")
	f.StringVar(&proxy, "proxy", "", "noise|real|none|manual")
	return cmd
}

func newListCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List provisioned profiles, oldest first",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			listing, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, listing, "")
			}
			if len(listing.Entries) == 0 {
				fmt.Println("no profiles in " + listing.StoreRoot)
				return nil
			}
			for _, e := range listing.Entries {
				fmt.Printf("- %s  %s (%s)\n", e.Name, humanize.Time(e.Created), e.Created.Format(time.DateTime))
			}
			return nil
		},
	}
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag", "checkup"},
		Short:   "Run diagnostics",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.DoctorRun(cmd.Context())
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
			} else if len(report.Findings) == 0 {
				fmt.Println("healthy")
			} else {
				fmt.Println("findings:")
				for _, f := range report.Findings {
					fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
				}
			}
			if !report.Healthy {
				return &exitError{code: 1, msg: "doctor found errors"}
			}
			return nil
		},
	}
}

func newCandidatesCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	candidatesCmd := &cobra.Command{Use: "candidates", Aliases: []string{"paths"}, Short: "Manage install location candidates"}

	addCmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Add a configured install candidate",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.CandidateAdd(args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"added": args[0]}, "added candidate "+args[0])
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Remove a configured install candidate",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if err := svc.CandidateRemove(args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"removed": args[0]}, "removed candidate "+args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the install search order",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			ordered := svc.Candidates()
			if *jsonOutput {
				return print(true, ordered, "")
			}
			for i, p := range ordered {
				fmt.Printf("%d. %s\n", i+1, p)
			}
			return nil
		},
	}

	candidatesCmd.AddCommand(addCmd, removeCmd, listCmd)
	return candidatesCmd
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}

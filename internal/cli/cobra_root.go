package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"packd/internal/packages"
	"packd/pkg/types"
)

// BuildRootCmd is a convenience for help-only fallbacks.
func BuildRootCmd() *cobra.Command { return BuildRootCmdWith(DefaultConfig()) }

// BuildRootCmdWith constructs the Cobra command tree wired to the fn* actions
// and the daemon client.
func BuildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "packctl",
		Short:         "Manage packd packages and downloads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("server", cfg.Server, "Daemon base URL (defaults PACKD_SERVER)")
	root.PersistentFlags().String("library", cfg.Library, "Library root for local commands (defaults PACKD_LIBRARY_DIR)")
	root.PersistentFlags().String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults PACKCTL_LOG_LEVEL or info)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("server"); f != nil && f.Value.String() != "" {
			cfg.Server = f.Value.String()
		}
		if f := cmd.InheritedFlags().Lookup("library"); f != nil {
			cfg.Library = f.Value.String()
		}
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil && f.Value.String() != "" {
			cfg.LogLvl = f.Value.String()
		}
		SetLogLevel(cfg.LogLvl)
	}

	client := func() *Client { return NewClient(cfg.Server) }

	// status
	statusCmd := &cobra.Command{Use: "status", Short: "Show daemon status", RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Status()
		if err != nil {
			return err
		}
		fmt.Printf("library:    %s\n", orDash(st.LibraryRoot))
		fmt.Printf("packages:   %d\n", st.InstalledPackages)
		fmt.Printf("downloads:  %d active\n", st.ActiveDownloads)
		if st.Running != nil {
			fmt.Printf("running:    %s (%s)\n", st.Running.DisplayName, st.Running.State)
		}
		fmt.Printf("uptime:     %ds\n", st.UptimeSeconds)
		return nil
	}}
	root.AddCommand(statusCmd)

	// list group
	listCmd := &cobra.Command{Use: "list", Short: "List packages or downloads", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("list requires a subcommand: packages|downloads|catalog")
	}}
	listPackages := &cobra.Command{Use: "packages", Short: "List installed packages", Example: "  packctl list packages", RunE: func(cmd *cobra.Command, args []string) error {
		pkgs, err := client().Packages()
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			fmt.Println("no packages installed")
			return nil
		}
		for _, p := range pkgs {
			state := p.State
			if state == "" {
				state = "not-started"
			}
			fmt.Printf("%s  %-28s %-10s %s\n", p.ID, p.DisplayName, p.Version, state)
		}
		return nil
	}}
	listDownloads := &cobra.Command{Use: "downloads", Short: "List active downloads", RunE: func(cmd *cobra.Command, args []string) error {
		dls, err := client().Downloads()
		if err != nil {
			return err
		}
		if len(dls) == 0 {
			fmt.Println("no active downloads")
			return nil
		}
		for _, d := range dls {
			fmt.Printf("%s  %-32s %-12s %5.1f%%\n", d.ID, d.FileName, d.State, d.Percent)
		}
		return nil
	}}
	listCatalog := &cobra.Command{Use: "catalog", Short: "List installable package types", RunE: func(cmd *cobra.Command, args []string) error {
		for _, def := range packages.All() {
			fmt.Printf("%-10s %-28s %s\n", def.Name, def.DisplayName, def.License)
		}
		return nil
	}}
	listCmd.AddCommand(listPackages, listDownloads, listCatalog)
	root.AddCommand(listCmd)

	// install
	var installAccel, installVersion, installShared string
	var installRecreate bool
	installCmd := &cobra.Command{
		Use:     "install <package-type>",
		Short:   "Install a package type into the local library",
		Example: "  packctl install sd-webui --accelerator cuda",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnInstall(cfg, args[0], installAccel, installVersion, installShared, installRecreate)
		},
	}
	installCmd.Flags().StringVar(&installAccel, "accelerator", "cpu", "Accelerator backend: cpu|cuda|rocm|directml|metal")
	installCmd.Flags().StringVar(&installVersion, "version", "", "Branch or tag (default: package default branch)")
	installCmd.Flags().StringVar(&installShared, "shared-folders", "", "Shared model folder mode: symlink|config|none")
	installCmd.Flags().BoolVar(&installRecreate, "recreate-venv", false, "Recreate the virtual environment")
	root.AddCommand(installCmd)

	// uninstall
	var keepFiles bool
	uninstallCmd := &cobra.Command{
		Use:   "uninstall <package-id>",
		Short: "Remove an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnUninstall(cfg, args[0], !keepFiles)
		},
	}
	uninstallCmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep the install directory on disk")
	root.AddCommand(uninstallCmd)

	// launch / stop
	launchCmd := &cobra.Command{Use: "launch <package-id>", Short: "Launch an installed package", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client().Launch(args[0])
		if err != nil {
			return err
		}
		info("package %s is %s", resp.ID, resp.State)
		return nil
	}}
	stopCmd := &cobra.Command{Use: "stop <package-id>", Short: "Stop the running package", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().Stop(args[0]); err != nil {
			return err
		}
		info("stop requested for %s", args[0])
		return nil
	}}
	root.AddCommand(launchCmd, stopCmd)

	// download group
	var dlName, dlSHA string
	downloadCmd := &cobra.Command{
		Use:     "download <uri>",
		Short:   "Start a tracked download into the library",
		Example: "  packctl download https://example.com/model.safetensors --sha256 abc...",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dl, err := client().StartDownload(types.DownloadRequest{URI: args[0], FileName: dlName, SHA256: dlSHA})
			if err != nil {
				return err
			}
			info("download %s started (%s)", dl.ID, dl.FileName)
			return nil
		},
	}
	downloadCmd.Flags().StringVar(&dlName, "name", "", "Target file name (default: derived from URI)")
	downloadCmd.Flags().StringVar(&dlSHA, "sha256", "", "Expected SHA-256 of the completed file")
	cancelCmd := &cobra.Command{Use: "cancel <download-id>", Short: "Cancel an active download", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		return client().CancelDownload(args[0])
	}}
	root.AddCommand(downloadCmd, cancelCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	root.AddCommand(completionCmd)

	return root
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/KarrLab/wc-env/pkg/cmd"
	"github.com/KarrLab/wc-env/pkg/config"
	"github.com/KarrLab/wc-env/pkg/logger"
	"github.com/KarrLab/wc-env/pkg/manager"
	"github.com/KarrLab/wc-env/pkg/util"
)

var BuildVersion string // Will be set dynamically at build time.
var appName string = "wc-env"

var flags struct {
	ConfigFile   string
	EnvFile      string
	Verbose      bool
	NoColor      bool
	DryRun       bool
	PrintVersion bool
}

// set up by the root PersistentPreRunE, shared by every subcommand
var mgr *manager.Manager

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Build and manage the Docker images of the whole-cell modeling environment.",
	Long: `A CLI tool that renders Dockerfiles from a declarative settings file and
drives the Docker engine to build, tag and push the modeling environment
images, and to create timestamped development containers from them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		logger.Init(flags.Verbose, flags.NoColor)

		if flags.PrintVersion || c.Name() == "version" {
			return nil
		}
		if flags.ConfigFile == "" {
			return fmt.Errorf("the --config flag is required")
		}

		if flags.EnvFile != "" {
			if err := godotenv.Load(flags.EnvFile); err != nil {
				return fmt.Errorf("loading env file %s: %w", flags.EnvFile, err)
			}
		}

		log.Info().Str("config", flags.ConfigFile).Msg("Loading")
		settings, err := config.Load(flags.ConfigFile)
		if err != nil {
			return err
		}
		if flags.Verbose {
			settings.Verbose = true
		}
		log.Debug().Interface("settings", settings).Msg("Loaded")

		var runner cmd.Runner = cmd.ExecRunner{}
		if flags.DryRun {
			log.Info().Msg("Dry run, engine commands will only be printed")
			runner = cmd.DryRunRunner{}
		}
		mgr = manager.New(settings, runner)
		return nil
	},
	RunE: func(c *cobra.Command, args []string) error {
		if flags.PrintVersion {
			fmt.Printf("%s version: %s\n", appName, BuildVersion)
			return nil
		}
		return c.Help()
	},
}

var buildBaseCmd = &cobra.Command{
	Use:   "build-base",
	Short: "Build the base image with the third-party dependencies",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.BuildBaseImage(c.Context())
	},
}

var buildCmd = &cobra.Command{
	Use:   "build REPO",
	Short: "Build a modeling environment image",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.BuildImage(c.Context(), args[0])
	},
}

var createCmd = &cobra.Command{
	Use:   "create REPO",
	Short: "Create a timestamped container from an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		name, err := mgr.CreateContainer(c.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push REPO",
	Short: "Push every tag of an image to the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.Push(c.Context(), args[0])
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull REPO",
	Short: "Pull every tag of an image from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.Pull(c.Context(), args[0])
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the registry with the configured credentials",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.Login(c.Context())
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove REPO",
	Short: "Remove every tagged version of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.RemoveImage(c.Context(), args[0])
	},
}

var removeContainersCmd = &cobra.Command{
	Use:   "remove-containers",
	Short: "Remove every container created from the configured name format",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		return mgr.RemoveContainers(c.Context())
	},
}

func init() {
	if BuildVersion == "" {
		BuildVersion = "development" // Fallback if not set during build
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "Path to the settings file (required)")
	rootCmd.PersistentFlags().StringVar(&flags.EnvFile, "env-file", "", "Load environment variables from this file before interpolation")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Increase verbosity of output")
	rootCmd.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flags.DryRun, "dry-run", false, "Print engine commands without executing them")
	rootCmd.Flags().BoolVarP(&flags.PrintVersion, "version", "V", false, "Display the application version and exit")

	rootCmd.AddCommand(buildBaseCmd, buildCmd, createCmd, pushCmd, pullCmd, loginCmd, removeCmd, removeContainersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		util.FailOnError(err)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kilnbuild/kiln/pkg/logger"
)

type rootCmdArgs struct {
	version  VersionInfo
	Progress string
	Verbose  bool
}

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Repo    string `json:"repo"`
}

var RootArgs = &rootCmdArgs{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Daemon-less container image builds",
	Long: `kiln builds container images from a declarative build plan and
publishes them to a registry, loads them into a local daemon, or writes
them to a tarball.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	logOpts := slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	slogger := slog.New(logger.NewRootLog(logOpts))
	slog.SetDefault(slogger)

	rootCmd.PersistentFlags().BoolVarP(&RootArgs.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&RootArgs.Progress, "progress", "auto", "The progress format to use. Options are: auto, tty, plain")
}

func SetVersionInfo(version, commit, date, repo string) string {
	rootCmd.Version = fmt.Sprintf("%s (Built on %s from Git SHA %s of %s)", version, date, commit, repo)
	RootArgs.version = VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
		Repo:    repo,
	}
	return rootCmd.Version
}

func RootCmd() *cobra.Command {
	return rootCmd
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current version of kiln",
	Long:  `Display the current version information for the kiln binary.`,
	Run: func(cmd *cobra.Command, _ []string) {
		b, _ := json.MarshalIndent(RootArgs.version, "", "  ")
		fmt.Println(string(b))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

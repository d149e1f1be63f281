package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stayreel/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// command is one stayreel subcommand
type command struct {
	name  string
	usage string
	run   func(args []string) int
}

var commands = []command{
	{name: "serve", usage: "Run workers, the recovery monitor and maintenance tasks until interrupted", run: runServe},
	{name: "submit", usage: "Submit a generation job (-template, -property, optional -wait)", run: runSubmit},
	{name: "status", usage: "Print the status of a job (-job) or list recent jobs", run: runStatus},
	{name: "version", usage: "Print version information", run: runVersion},
}

var (
	// Global state, set by loadConfig
	config *common.Config
	logger arbor.ILogger
)

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	name := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}

	for _, cmd := range commands {
		if cmd.name == name {
			os.Exit(cmd.run(args))
		}
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	printUsage()
	os.Exit(2)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: stayreel <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", cmd.name, cmd.usage)
	}
}

// commonFlags registers the flags every command shares
type commonFlags struct {
	configFiles configPaths
	workers     *int
	logLevel    *string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cf := &commonFlags{}
	fs.Var(&cf.configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	fs.Var(&cf.configFiles, "c", "Configuration file path (shorthand)")
	cf.workers = fs.Int("workers", 0, "Number of queue workers (overrides config)")
	cf.logLevel = fs.String("log-level", "", "Log level (overrides config)")
	return fs, cf
}

// loadConfig runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Initialize logger
func loadConfig(cf *commonFlags) error {
	// Auto-discover config file if not specified
	if len(cf.configFiles) == 0 {
		if _, err := os.Stat("stayreel.toml"); err == nil {
			cf.configFiles = append(cf.configFiles, "stayreel.toml")
		} else if _, err := os.Stat("deployments/local/stayreel.toml"); err == nil {
			cf.configFiles = append(cf.configFiles, "deployments/local/stayreel.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(cf.configFiles...)
	if err != nil {
		common.GetLogger().Error().Strs("paths", cf.configFiles).Err(err).Msg("Failed to load configuration")
		return err
	}

	common.ApplyFlagOverrides(config, *cf.workers, *cf.logLevel)
	logger = common.SetupLogger(config)

	logger.Debug().
		Strs("config_files", cf.configFiles).
		Str("badger_path", config.Storage.Badger.Path).
		Str("workspace_root", config.Workspace.Root).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Resolved configuration")
	return nil
}

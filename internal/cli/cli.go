package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Sync   *SyncCommand
	Serve  *ServeCommand
	Status *StatusCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "emosync"
	parser.LongDescription = "Ingest per-video emotion/NLP analysis artifacts from the object store into the experiments database."

	cmds := &commands{
		Sync:   &SyncCommand{globals: &globals, version: version},
		Serve:  &ServeCommand{globals: &globals, version: version},
		Status: &StatusCommand{globals: &globals, version: version},
	}

	parser.AddCommand("sync", "Run one sync pass now", "List the object store and import any new analysis bundles, reporting counts.", cmds.Sync)
	parser.AddCommand("serve", "Run the background sync service", "Run the periodic sync scheduler and the admin HTTP endpoint until interrupted.", cmds.Serve)
	parser.AddCommand("status", "Show database statistics", "Show experiment/analysis counts and the newest import time.", cmds.Status)

	return parser, &globals, cmds
}

// Run is the main entry point for the emosync CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("emosync %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}

// a2j converts matchmove scenes (Alembic, USD, Maya ASCII) into After
// Effects, USD, Maya, FBX and glTF files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Faultbox/a2j/internal/config"
	"github.com/Faultbox/a2j/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "convert", "c":
		err = cmdConvert(args)
	case "info", "i":
		err = cmdInfo(args)
	case "watch", "w":
		err = cmdWatch(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`a2j - matchmove scene converter

Usage:
  a2j <command> [options]

Commands:
  convert <input> <output_dir>   Convert a scene into every target format
  info <input>                   Show frame range, objects and animation types
  watch <input> <output_dir>     Convert, then reconvert whenever the input changes
  config init [path]             Write the default configuration

Inputs:  .abc, .usd, .usda, .usdc, .ma
Targets: ae, usd, maya, fbx, gltf

Options (convert, watch):
  --fps N          Frame rate (default 24)
  --frames N       Frame count (default: detect from source)
  --shot NAME      Shot name (default: input file name)
  --targets LIST   Comma-separated targets (default ae,usd,maya,fbx)
  --parallel       Run exporters concurrently
  --config FILE    Config file (YAML or TOML)
  --debug          Debug logging
  --log-file FILE  Also log to a rotated file

Examples:
  a2j convert shot_010.abc ./out
  a2j convert shot_010.ma ./out --fps 25 --targets fbx,gltf
  a2j info shot_010.usd --yaml
  a2j watch shot_010.ma ./out --targets ae`)
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments and returns the positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// setup loads the configuration and starts logging.
func setup(flags *config.Flags) (*config.Config, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, nil
}

// Command tsmatch locates a known transport stream segment inside a
// larger recording by content fingerprinting, and extracts exact byte or
// time ranges from the recording.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zsiec/tsmatch/internal/config"
	"github.com/zsiec/tsmatch/internal/extract"
	"github.com/zsiec/tsmatch/internal/match"
)

var version = "dev"

// Process exit codes.
const (
	exitOK      = 0 // success
	exitInput   = 1 // input or hash file format error
	exitNoMatch = 2 // no confident match found
	exitRange   = 3 // invalid range or arguments
)

func main() {
	_ = config.Load() // .env is optional

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" || config.GetEnv("TSMATCH_LOG_LEVEL", "") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 || isHelp(os.Args[1]) {
		printUsage()
		return
	}

	var code int
	switch os.Args[1] {
	case "hash":
		code = cmdHash(os.Args[2:])
	case "match":
		code = cmdMatch(os.Args[2:])
	case "cut":
		code = cmdCut(os.Args[2:])
	case "version":
		fmt.Println("tsmatch", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		code = exitRange
	}
	os.Exit(code)
}

func isHelp(arg string) bool {
	return arg == "help" || arg == "-h" || arg == "--help"
}

func printUsage() {
	fmt.Fprint(os.Stderr, `tsmatch - locate and extract transport stream segments by content

usage:
  tsmatch hash  [-o out.tsmh] <video.ts>
  tsmatch match [flags] <hashfile.tsmh> <segment.ts>
  tsmatch cut   [flags] <video.ts> <output.ts>
  tsmatch version

exit codes: 0 success, 1 input/format error, 2 no confident match,
3 range/argument error. Run a command with -h for its flags.
`)
}

// fail logs the error and maps it to the documented process exit code.
func fail(msg string, err error) int {
	slog.Error(msg, "error", err)
	return exitCodeFor(err)
}

func exitCodeFor(err error) int {
	var re *extract.RangeError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, match.ErrNoConfidentMatch):
		return exitNoMatch
	case errors.As(err, &re):
		return exitRange
	default:
		return exitInput
	}
}

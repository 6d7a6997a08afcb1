// Command validator-tool loads and validates a prompt-routing configuration
// file and prints a human-readable summary, grounded on the teacher's
// cmd/llm-router/main.go flag-parsing and logging conventions.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/tributary-ai/promptroute/internal/routeconfig"
	"github.com/tributary-ai/promptroute/internal/routeerror"
)

const usage = `validator-tool <config-path>

Loads and validates a promptroute configuration file.

Exit codes:
  0  configuration is valid
  1  configuration is invalid or could not be read
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			fmt.Print(usage)
			return 0
		}
	}
	if len(args) != 1 {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}

	path := args[0]
	start := time.Now()
	cfg, err := routeconfig.LoadAndValidateConfig(path)
	elapsed := time.Since(start)

	if err != nil {
		printError(err)
		return 1
	}

	fmt.Printf("valid: version=%s prompts=%d providers=%d schemas=%d elapsed=%dms\n",
		cfg.Version, len(cfg.Prompts), len(cfg.Providers), len(cfg.ResponseSchemas), elapsed.Milliseconds())
	return 0
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
	if re, ok := routeerror.AsError(err); ok && len(re.Details) > 0 {
		fmt.Fprintf(os.Stderr, "details: %+v\n", re.Details)
	}
}

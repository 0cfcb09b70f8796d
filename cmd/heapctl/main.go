// heapctl is a CLI for ad hoc inspection of a file-backed arena: open an
// existing arena file, or create a new one, then drop into a REPL for
// get/add/mem/remove/edges/telemetry commands.
//
// Usage:
//
//	heapctl <arena-file>              Open an existing arena file
//	heapctl new [opts] <arena-file>   Create a new arena file
//
// Options for 'new':
//
//	--hash-table-pow   log2 of hash-slot capacity (default: from config)
//	--dep-table-pow    log2 of dependency-edge capacity
//	--heap-size        blob-heap size in bytes
//	--config           path to a config file overriding defaults
//
// Commands (in REPL):
//
//	add <prefix> <key> <value>   Store value under prefix:key
//	get <prefix> <key>           Retrieve and print the value
//	mem <prefix> <key>           Report whether prefix:key is present
//	del <prefix> <key>           Remove prefix:key
//	edge <from> <to>             Record a dependency edge (prefix:key form)
//	hasedge <from> <to>          Report whether the edge exists
//	edges                        List every recorded dependency edge
//	info                         Show arena capacity/usage counters
//	telemetry                    Show folded Sampler snapshots
//	help                         Show this help
//	exit / quit / q              Exit
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/heaplattice/heapstore/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("missing command or arena file path")
	}

	if os.Args[1] == "new" {
		return runNew(os.Args[2:])
	}
	return runOpen(os.Args[1:])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  heapctl <arena-file>              Open an existing arena file")
	fmt.Fprintln(os.Stderr, "  heapctl new [opts] <arena-file>   Create a new arena file")
	fmt.Fprintln(os.Stderr, "\nRun 'heapctl new --help' for options when creating a new arena.")
}

func runNew(args []string) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)

	cfg := config.DefaultConfig()
	hashPow := fs.Int("hash-table-pow", cfg.HashTablePow, "log2 of hash-slot capacity")
	depPow := fs.Int("dep-table-pow", cfg.DepTablePow, "log2 of dependency-edge capacity")
	heapSize := fs.Int64("heap-size", cfg.HeapSize, "blob heap size in bytes")
	configPath := fs.String("config", "", "path to a config file overriding defaults")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: heapctl new [options] <arena-file>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing arena file path")
	}
	arenaPath := fs.Arg(0)

	if _, err := os.Stat(arenaPath); err == nil {
		return fmt.Errorf("arena file already exists: %s (use 'heapctl %s' to open it)", arenaPath, arenaPath)
	}

	if *configPath != "" {
		loaded, _, err := config.Load(".", *configPath, config.Config{}, os.Environ())
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if fs.Changed("hash-table-pow") {
		cfg.HashTablePow = *hashPow
	}
	if fs.Changed("dep-table-pow") {
		cfg.DepTablePow = *depPow
	}
	if fs.Changed("heap-size") {
		cfg.HeapSize = *heapSize
	}

	a, err := createArenaAt(arenaPath, cfg)
	if err != nil {
		return fmt.Errorf("creating arena: %w", err)
	}
	defer func() { _ = a.Close() }()

	fmt.Printf("Created arena %s (hash_table_pow=%d dep_table_pow=%d heap_size=%d)\n",
		arenaPath, cfg.HashTablePow, cfg.DepTablePow, cfg.HeapSize)

	return (&REPL{arena: a}).Run()
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a config file overriding defaults")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: heapctl [--config <path>] <arena-file>")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing arena file path")
	}
	arenaPath := fs.Arg(0)

	if _, err := os.Stat(arenaPath); os.IsNotExist(err) {
		return fmt.Errorf("arena file does not exist: %s (use 'heapctl new %s' to create it)", arenaPath, arenaPath)
	}

	if _, _, err := config.Load(".", *configPath, config.Config{}, os.Environ()); err != nil {
		return err
	}

	a, err := openArenaAt(arenaPath)
	if err != nil {
		return fmt.Errorf("opening arena: %w", err)
	}
	defer func() { _ = a.Close() }()

	return (&REPL{arena: a}).Run()
}

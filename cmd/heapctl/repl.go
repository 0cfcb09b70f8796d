package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/heaplattice/heapstore/internal/telemetry"
	"github.com/heaplattice/heapstore/pkg/arena"
	"github.com/heaplattice/heapstore/pkg/key"
)

// REPL is the interactive command loop over a single live arena.
type REPL struct {
	arena *arena.Arena
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".heapctl_history")
}

var replCommands = []string{
	"add", "get", "mem", "del",
	"edge", "hasedge", "edges",
	"info", "telemetry", "help",
	"exit", "quit", "q",
}

// Run starts the REPL loop, reading lines until exit/quit/q or EOF.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Println("heapctl - arena inspection REPL")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("heapctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "add":
			r.cmdAdd(args)

		case "get":
			r.cmdGet(args)

		case "mem":
			r.cmdMem(args)

		case "del", "delete", "remove":
			r.cmdDel(args)

		case "edge":
			r.cmdEdge(args)

		case "hasedge":
			r.cmdHasEdge(args)

		case "edges":
			r.cmdEdges()

		case "info":
			r.cmdInfo()

		case "telemetry":
			r.cmdTelemetry()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		_ = f.Close()
	}
}

func (r *REPL) completer(line string) []string {
	lower := strings.ToLower(line)
	var completions []string
	for _, cmd := range replCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  add <prefix> <key> <value>   Store value under prefix:key")
	fmt.Println("  get <prefix> <key>           Retrieve and print the value")
	fmt.Println("  mem <prefix> <key>           Report whether prefix:key is present")
	fmt.Println("  del <prefix> <key>           Remove prefix:key")
	fmt.Println("  edge <from> <to>             Record a dependency edge (prefix:key form)")
	fmt.Println("  hasedge <from> <to>          Report whether the edge exists")
	fmt.Println("  edges                        List every recorded dependency edge")
	fmt.Println("  info                         Show arena capacity/usage counters")
	fmt.Println("  telemetry                    Show folded Sampler snapshots")
	fmt.Println("  help                         Show this help")
	fmt.Println("  exit / quit / q              Exit")
	fmt.Println()
}

// digestOf derives the arena.Digest for a (prefix, key) pair the same way
// pkg/key.Domain.Make does, without requiring a typed fmt.Stringer key.
func digestOf(prefixStr, k string) (arena.Digest, error) {
	prefix, err := strconv.ParseUint(prefixStr, 10, 32)
	if err != nil {
		return arena.Digest{}, fmt.Errorf("invalid prefix %q: %w", prefixStr, err)
	}
	sum := key.MD5(key.Key(fmt.Sprintf("%d:%s", prefix, k)))
	return arena.Digest(sum), nil
}

// refDigest parses a single "prefix:key" token into a Digest, the form
// edge/hasedge use since each endpoint is itself a key reference.
func refDigest(ref string) (arena.Digest, error) {
	i := strings.IndexByte(ref, ':')
	if i < 0 {
		return arena.Digest{}, fmt.Errorf("malformed reference %q, want prefix:key", ref)
	}
	return digestOf(ref[:i], ref[i+1:])
}

func (r *REPL) cmdAdd(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: add <prefix> <key> <value>")
		return
	}
	d, err := digestOf(args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	value := strings.Join(args[2:], " ")
	res, err := r.arena.Add(d, []byte(value))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !res.Inserted {
		fmt.Println("already present (no-op)")
		return
	}
	fmt.Printf("inserted (compressed=%d original=%d footprint=%d)\n",
		res.CompressedSize, res.OriginalSize, res.TotalFootprint)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: get <prefix> <key>")
		return
	}
	d, err := digestOf(args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	v, err := r.arena.Get(d)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%s\n", v)
}

func (r *REPL) cmdMem(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: mem <prefix> <key>")
		return
	}
	d, err := digestOf(args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	ok, err := r.arena.Mem(d)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(ok)
}

func (r *REPL) cmdDel(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: del <prefix> <key>")
		return
	}
	d, err := digestOf(args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	freed, err := r.arena.Remove(d)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("removed (freed %d bytes)\n", freed)
}

func (r *REPL) cmdEdge(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: edge <from> <to> (prefix:key form)")
		return
	}
	from, err := refDigest(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	to, err := refDigest(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if err := r.arena.AddEdge(from, to); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

func (r *REPL) cmdHasEdge(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: hasedge <from> <to> (prefix:key form)")
		return
	}
	from, err := refDigest(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	to, err := refDigest(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	ok, err := r.arena.HasEdge(from, to)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(ok)
}

func (r *REPL) cmdEdges() {
	var lines []string
	r.arena.Edges(func(from, to arena.Digest) {
		lines = append(lines, fmt.Sprintf("%x -> %x", from, to))
	})
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Println(l)
	}
	fmt.Printf("%d edge(s)\n", len(lines))
}

func (r *REPL) cmdInfo() {
	fmt.Printf("hash table: %d/%d slots used\n", r.arena.HashUsedSlots(), r.arena.HashCapacity())
	fmt.Printf("dep table:  %d/%d slots used\n", r.arena.DepUsedSlots(), r.arena.DepCapacity())
	fmt.Printf("heap:       %d used, %d wasted\n", r.arena.HeapUsed(), r.arena.HeapWasted())
	fmt.Printf("generation: %d\n", r.arena.Generation())
}

func (r *REPL) cmdTelemetry() {
	snaps := telemetry.GetTelemetry()
	if len(snaps) == 0 {
		fmt.Println("no samplers registered")
		return
	}
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := snaps[name]
		fmt.Printf("%s: count=%d bytes=%d\n", name, s.Count, s.Bytes)
		descs := make([]string, 0, len(s.ByDescription))
		for d := range s.ByDescription {
			descs = append(descs, d)
		}
		sort.Strings(descs)
		for _, d := range descs {
			ds := s.ByDescription[d]
			fmt.Printf("  %s: count=%d bytes=%d\n", d, ds.Count, ds.Bytes)
		}
	}
}

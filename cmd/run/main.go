package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/brooklang/brook/engine"
	"github.com/brooklang/brook/runtime"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to script file")
		externals   = flag.String("ext", "", "External function names (comma-separated, dotted for namespaces)")
		scriptName  = flag.String("name", "", "Script name used in tracebacks (defaults to the file name)")
		memLimit    = flag.Uint64("mem", 0, "Memory limit in bytes (0 = unlimited)")
		timeLimitMS = flag.Uint64("time-ms", 0, "Time limit in milliseconds (0 = unlimited)")
		stackLimit  = flag.Int("stack", 0, "Recursion depth limit (0 = unlimited)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *scriptFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -script <file.br> [-ext fetch,db.query] [-mem N] [-time-ms N] [-stack N]")
		fmt.Fprintln(os.Stderr, "       run -script <file.br> -i  (interactive mode)")
		os.Exit(1)
	}

	if *debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		engine.SetLogger(logger.Named("engine"))
		runtime.SetLogger(logger.Named("runtime"))
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*scriptFile, splitExternals(*externals), *scriptName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*scriptFile, *externals, *scriptName, *memLimit, *timeLimitMS, *stackLimit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitExternals(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func run(scriptFile, extStr, name string, memLimit, timeLimitMS uint64, stackLimit int) error {
	source, err := os.ReadFile(scriptFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if name == "" {
		name = scriptFile
	}

	h, err := runtime.New(string(source), splitExternals(extStr), name)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	defer h.Close()

	if memLimit > 0 {
		h.SetMemoryLimit(memLimit)
	}
	if timeLimitMS > 0 {
		h.SetTimeLimit(time.Duration(timeLimitMS) * time.Millisecond)
	}
	if stackLimit > 0 {
		h.SetStackLimit(stackLimit)
	}

	progress, err := h.Start()
	if err != nil && progress != runtime.ProgressError {
		return fmt.Errorf("start: %w", err)
	}

	// Host calls are answered from stdin, one JSON value per line.
	// A script failure lands in ProgressError with the envelope still
	// available, so only operation errors abort the loop.
	stdin := bufio.NewScanner(os.Stdin)
	for progress != runtime.ProgressComplete && progress != runtime.ProgressError {
		switch progress {
		case runtime.ProgressPending:
			progress, err = answerCall(h, stdin)
		case runtime.ProgressAwaitingFutures:
			progress, err = answerFutures(h, stdin)
		default:
			return fmt.Errorf("unexpected progress %s", progress)
		}
		if err != nil && progress != runtime.ProgressError {
			return err
		}
	}

	return printOutcome(h)
}

func answerCall(h *runtime.Handle, stdin *bufio.Scanner) (runtime.Progress, error) {
	name, _ := h.PendingFunctionName()
	args, _ := h.PendingArgs()
	kwargs, _ := h.PendingKwargs()
	id, _ := h.PendingCallID()

	fmt.Printf("call #%d: %s args=%s kwargs=%s\n", id, name, args, kwargs)
	fmt.Print("result JSON (or !error <msg>, or !future): ")
	if !stdin.Scan() {
		return 0, fmt.Errorf("stdin closed while call #%d was pending", id)
	}
	line := strings.TrimSpace(stdin.Text())

	switch {
	case line == "!future":
		return h.ResumeAsFuture()
	case strings.HasPrefix(line, "!error "):
		return h.ResumeWithError(strings.TrimPrefix(line, "!error "))
	default:
		return h.Resume(line)
	}
}

func answerFutures(h *runtime.Handle, stdin *bufio.Scanner) (runtime.Progress, error) {
	ids, _ := h.PendingFutureCallIDs()
	fmt.Printf("awaiting futures: %v\n", ids)

	results := make(map[string]json.RawMessage)
	failures := make(map[string]string)
	for _, id := range ids {
		fmt.Printf("result JSON for #%d (or !error <msg>): ", id)
		if !stdin.Scan() {
			return 0, fmt.Errorf("stdin closed while futures were pending")
		}
		line := strings.TrimSpace(stdin.Text())
		key := fmt.Sprintf("%d", id)
		if strings.HasPrefix(line, "!error ") {
			failures[key] = strings.TrimPrefix(line, "!error ")
		} else {
			results[key] = json.RawMessage(line)
		}
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return 0, err
	}
	errorsJSON, err := json.Marshal(failures)
	if err != nil {
		return 0, err
	}
	return h.ResumeFutures(string(resultsJSON), string(errorsJSON))
}

func printOutcome(h *runtime.Handle) error {
	if out := h.PrintOutput(); out != "" {
		fmt.Printf("--- output ---\n%s", out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Println()
		}
	}

	env, _ := h.CompletedResult()
	var pretty map[string]any
	if err := json.Unmarshal(env, &pretty); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	formatted, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("--- result ---\n%s\n", formatted)

	if isErr, _ := h.CompletedIsError(); isErr {
		os.Exit(2)
	}
	return nil
}

package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/jora/internal/config"
	"github.com/amirbrooks/jora/internal/logging"
	"github.com/amirbrooks/jora/internal/prompt"
	"github.com/amirbrooks/jora/internal/store"
	"github.com/amirbrooks/jora/internal/view"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitCorrupt  = 4
	ExitInternal = 10
)

type GlobalFlags struct {
	Root    string
	JSON    bool
	YAML    bool
	Yes     bool
	No      bool
	Strict  bool
	Quiet   bool
	Verbose bool
}

type app struct {
	gf     GlobalFlags
	cfg    *config.Config
	st     *store.Store
	in     *prompt.Prompter
	out    io.Writer
	errOut io.Writer
	logger *log.Logger
}

func Run(args []string) int {
	return RunWithIO(args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO runs one jora invocation against the given streams and returns
// the process exit code.
func RunWithIO(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	gf, rest, err := extractGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return ExitUsage
	}

	cmd := ""
	var cmdArgs []string
	if len(rest) > 0 {
		cmd = rest[0]
		cmdArgs = rest[1:]
	}
	switch cmd {
	case "help", "--help", "-h":
		printHelp(stdout)
		return ExitOK
	}

	cfg, err := config.Load(".", os.Getenv)
	if err != nil {
		fmt.Fprintln(stderr, "jora:", err)
		return ExitUsage
	}
	applyGlobalFlags(cfg, gf)

	// Prompts go to stderr when stdout carries JSON or YAML.
	promptOut := stdout
	if gf.JSON || gf.YAML {
		promptOut = stderr
	}
	a := &app{
		gf:     gf,
		cfg:    cfg,
		in:     prompt.New(stdin, promptOut),
		out:    stdout,
		errOut: stderr,
		logger: logging.New(stderr, cfg.LogLevel, cfg.LogFormat),
	}
	if cfg.File != "" {
		a.logger.Debug("loaded config", "file", cfg.File)
	}

	if !store.Exists(cfg.Root) {
		if err := store.Init(cfg.Root); err != nil {
			fmt.Fprintln(stderr, "jora:", err)
			return ExitInternal
		}
		a.logger.Info("initialized store", "root", cfg.Root)
	}

	a.st, err = store.Open(cfg.Root,
		store.WithLogger(a.logger),
		store.WithStrict(cfg.Strict),
		store.WithIDPolicy(cfg.Policy()),
	)
	if err != nil {
		fmt.Fprintln(stderr, "jora:", err)
		if errors.Is(err, store.ErrCorrupt) {
			return ExitCorrupt
		}
		return ExitInternal
	}

	switch cmd {
	case "":
		if a.st.Count() > 0 {
			return a.cmdList(nil)
		}
		return a.cmdNew(nil)
	case "init":
		return a.cmdInit(cmdArgs)
	case "new", "add", "-n", "--new":
		return a.cmdNew(cmdArgs)
	case "mv", "move", "-mv", "--move":
		return a.cmdMove(cmdArgs)
	case "rm", "delete", "-x", "--delete":
		return a.cmdDelete(cmdArgs)
	case "ls", "list", "-s", "--show":
		return a.cmdList(cmdArgs)
	case "show", "-id", "--show-id":
		return a.cmdShow(cmdArgs)
	case "count":
		return a.cmdCount(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printHelp(stderr)
		return ExitUsage
	}
}

func extractGlobalFlags(args []string) (GlobalFlags, []string, error) {
	// Allow flags anywhere by scanning and stripping known globals.
	gf := GlobalFlags{}
	out := make([]string, 0, len(args))
	skip := 0

	for i := 0; i < len(args); i++ {
		if skip > 0 {
			skip--
			continue
		}
		a := args[i]
		switch a {
		case "--root":
			if i+1 >= len(args) {
				return gf, nil, errors.New("--root requires a value")
			}
			gf.Root = args[i+1]
			skip = 1
		case "--json":
			gf.JSON = true
		case "--yaml":
			gf.YAML = true
		case "--yes", "-y":
			gf.Yes = true
		case "--no":
			gf.No = true
		case "--strict":
			gf.Strict = true
		case "--quiet", "-q":
			gf.Quiet = true
		case "--verbose", "-v":
			gf.Verbose = true
		default:
			out = append(out, a)
		}
	}

	if gf.JSON && gf.YAML {
		return gf, nil, errors.New("--json and --yaml are mutually exclusive")
	}
	if gf.Yes && gf.No {
		return gf, nil, errors.New("--yes and --no are mutually exclusive")
	}
	if gf.Quiet && gf.Verbose {
		return gf, nil, errors.New("--quiet and --verbose are mutually exclusive")
	}
	return gf, out, nil
}

func applyGlobalFlags(cfg *config.Config, gf GlobalFlags) {
	if strings.TrimSpace(gf.Root) != "" {
		cfg.Root = strings.TrimSpace(gf.Root)
	}
	if gf.Strict {
		cfg.Strict = true
	}
	if gf.Verbose {
		cfg.LogLevel = "debug"
	}
	if gf.Quiet {
		cfg.LogLevel = "error"
	}
}

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") && !isNumber(a) {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 < len(args) {
					flags = append(flags, args[i+1])
					i++
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}

func isNumber(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a *app) format() view.Format {
	switch {
	case a.gf.JSON:
		return view.FormatJSON
	case a.gf.YAML:
		return view.FormatYAML
	default:
		return view.FormatText
	}
}

func (a *app) encode(cmd string, payload any) int {
	if err := view.Encode(a.out, a.format(), payload); err != nil {
		fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
		return ExitInternal
	}
	return ExitOK
}

// fail maps a store error to a message and exit code.
func (a *app) fail(cmd string, err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(a.errOut, "Task not found")
		return ExitNotFound
	case errors.Is(err, store.ErrInvalid):
		fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
		return ExitUsage
	case errors.Is(err, prompt.ErrAborted):
		fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
		return ExitUsage
	case errors.Is(err, store.ErrCorrupt):
		fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
		return ExitCorrupt
	default:
		fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
		return ExitInternal
	}
}

func (a *app) cmdInit(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(a.errOut, "Usage: jora init")
		return ExitUsage
	}
	if err := store.Init(a.cfg.Root); err != nil {
		return a.fail("init", err)
	}
	if !a.gf.Quiet {
		fmt.Fprintln(a.out, "Initialized jora store at:", a.cfg.Root)
	}
	return ExitOK
}

func (a *app) cmdNew(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(a.errOut, "Usage: jora new")
		return ExitUsage
	}
	in, err := a.in.TaskInput()
	if err != nil {
		return a.fail("new", err)
	}
	task, err := a.st.Create(in.Title, in.Priority, in.Description)
	if err != nil {
		return a.fail("new", err)
	}
	if a.format() != view.FormatText {
		return a.encode("new", map[string]any{"task": task})
	}
	if !a.gf.Quiet {
		fmt.Fprintf(a.out, "Added task %s with ID #%d to %s\n", task.Title, task.ID, task.Status)
	}
	return ExitOK
}

func (a *app) reopenFunc() store.ReopenFunc {
	switch {
	case a.gf.Yes:
		return func(store.Task) (bool, error) { return true, nil }
	case a.gf.No:
		return func(store.Task) (bool, error) { return false, nil }
	default:
		return a.in.Reopen
	}
}

func (a *app) cmdMove(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.errOut, "Usage: jora mv <id>")
		return ExitUsage
	}
	id, err := store.ParseID(args[0])
	if err != nil {
		return a.fail("mv", err)
	}
	status, err := a.st.Move(id, a.reopenFunc())
	if err != nil {
		return a.fail("mv", err)
	}
	if a.format() != view.FormatText {
		task, err := a.st.Get(id)
		if err != nil {
			return a.fail("mv", err)
		}
		return a.encode("mv", map[string]any{"task": task})
	}
	if !a.gf.Quiet {
		fmt.Fprintf(a.out, "Task ID %d moved to %s\n", id, status)
	}
	return ExitOK
}

func (a *app) cmdDelete(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.errOut, "Usage: jora rm <id>")
		return ExitUsage
	}
	id, err := store.ParseID(args[0])
	if err != nil {
		return a.fail("rm", err)
	}
	if err := a.st.Delete(id); err != nil {
		return a.fail("rm", err)
	}
	if a.format() != view.FormatText {
		return a.encode("rm", map[string]any{"deleted": id})
	}
	if !a.gf.Quiet {
		fmt.Fprintf(a.out, "Task ID %d deleted\n", id)
	}
	return ExitOK
}

func (a *app) cmdList(args []string) int {
	args = reorderFlags(args, map[string]bool{
		"--all": false,
	})
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	all := fs.Bool("all", false, "Include CLOSED tasks")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	rest := fs.Args()
	if len(rest) > 1 {
		fmt.Fprintln(a.errOut, "Usage: jora ls [N] [--all]")
		return ExitUsage
	}
	limit := a.cfg.ShowCount
	if len(rest) == 1 {
		limit = view.ParseLimit(rest[0])
	}

	tasks := view.Select(a.st.Tasks(), limit, *all)
	if a.format() != view.FormatText {
		return a.encode("ls", map[string]any{"tasks": tasks})
	}
	if len(tasks) == 0 {
		fmt.Fprintln(a.out, "(no tasks)")
		return ExitOK
	}
	for _, t := range tasks {
		fmt.Fprintln(a.out, view.Line(t))
	}
	return ExitOK
}

func (a *app) cmdShow(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.errOut, "Usage: jora show <id>")
		return ExitUsage
	}
	id, err := store.ParseID(args[0])
	if err != nil {
		return a.fail("show", err)
	}
	task, err := a.st.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(a.errOut, "Task ID %d not found.\n", id)
			return ExitNotFound
		}
		return a.fail("show", err)
	}
	if a.format() != view.FormatText {
		return a.encode("show", map[string]any{"task": task})
	}
	fmt.Fprint(a.out, view.Detail(task))
	return ExitOK
}

func (a *app) cmdCount(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(a.errOut, "Usage: jora count")
		return ExitUsage
	}
	if a.format() != view.FormatText {
		return a.encode("count", map[string]any{"count": a.st.Count()})
	}
	fmt.Fprintln(a.out, a.st.Count())
	return ExitOK
}

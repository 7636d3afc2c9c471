package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "select":
		return runSelect(args[2:], stdout, stderr)
	case "gate":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: vigil gate run [flags]")
			return 2
		}
		return runGate(args[2:], stdout, stderr)
	case "consolidate":
		return runConsolidate(args[2:], stdout, stderr)
	case "promote":
		return runPromote(args[2:], stdout, stderr)
	case "approve":
		return runApprove(args[2:], stdout, stderr)
	case "insights":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: vigil insights <ingest|list>")
			return 2
		}
		return runInsights(args[2:], stdout, stderr)
	case "obligations":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: vigil obligations list [--domain d]")
			return 2
		}
		return runObligations(args[2:], stdout, stderr)
	case "packs":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: vigil packs list")
			return 2
		}
		return runPacks(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "vigil %s\n", appVersion)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sVigil %s%s\n", ColorBold+ColorBlue, appVersion, ColorReset)
	fmt.Fprintf(w, "%sFailure knowledge in. Checkable obligations out.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  vigil <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "GATE")
	printCommand(w, "gate run", "Evaluate obligations against captured evidence (--strict, --json)")
	printCommand(w, "select", "Match a feature description to packs and obligations (--explain)")

	printSection(w, "KNOWLEDGE")
	printCommand(w, "insights", "Ingest or list insight records (ingest/list)")
	printCommand(w, "consolidate", "Consolidate pending insights into a review summary")
	printCommand(w, "approve", "Issue an approval token for a proposed insight")
	printCommand(w, "promote", "Promote an approved insight to curated")

	printSection(w, "CATALOG")
	printCommand(w, "obligations", "List registered obligations (list --domain)")
	printCommand(w, "packs", "List loaded failure packs (list)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

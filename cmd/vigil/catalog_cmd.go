package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

// runObligations implements `vigil obligations`.
func runObligations(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "list":
		return runObligationsList(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown obligations subcommand: %s\n", args[0])
		_, _ = fmt.Fprintln(stderr, "Usage: vigil obligations list [--domain d]")
		return 2
	}
}

func runObligationsList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("obligations list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		domain      string
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.StringVar(&domain, "domain", "", "Only obligations in this domain")
	cmd.BoolVar(&jsonOutput, "json", false, "Output obligations as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	kn, ok := loadKnowledge(prof, stderr)
	if !ok {
		return 2
	}

	obs := kn.registry.List(domain)

	if jsonOutput {
		data, _ := json.MarshalIndent(obs, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Obligations (%d):\n", len(obs))
	for _, ob := range obs {
		prod := " "
		if ob.SafeInProd {
			prod = "P"
		}
		_, _ = fmt.Fprintf(stdout, "  %s%-36s%s %-14s %-8s %s  %s\n",
			ColorGreen, ob.ID, ColorReset, ob.Domain, ob.Risk, prod, ob.Title)
	}
	return 0
}

// runPacks implements `vigil packs`.
func runPacks(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "list":
		return runPacksList(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown packs subcommand: %s\n", args[0])
		_, _ = fmt.Fprintln(stderr, "Usage: vigil packs list")
		return 2
	}
}

func runPacksList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("packs list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		profilePath string
		jsonOutput  bool
	)

	cmd.StringVar(&profilePath, "profile", "", "Path to the run profile")
	cmd.BoolVar(&jsonOutput, "json", false, "Output packs as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	prof, ok := loadProfile(profilePath, stderr)
	if !ok {
		return 2
	}
	kn, ok := loadKnowledge(prof, stderr)
	if !ok {
		return 2
	}

	packs := kn.catalog.List()

	if jsonOutput {
		data, _ := json.MarshalIndent(packs, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Packs (%d):\n", len(packs))
	for _, p := range packs {
		_, _ = fmt.Fprintf(stdout, "  %s%-42s%s %-8s %2d modes, %2d templates, covers %d obligations\n",
			ColorGreen, p.ID, ColorReset, p.Version,
			len(p.FailureModes), len(p.TestTemplates), len(p.CoveredObligations()))
		if p.Description != "" {
			_, _ = fmt.Fprintf(stdout, "    %s%s%s\n", ColorGray, p.Description, ColorReset)
		}
	}
	return 0
}

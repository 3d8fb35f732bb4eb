package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "tree":
		if len(args) >= 3 {
			switch args[2] {
			case "root":
				return runTreeRoot(args[3:])
			case "proof":
				return runTreeProof(args[3:])
			}
		}
	case "leaf":
		return runLeaf(args[2:])
	case "vault":
		if len(args) >= 3 && args[2] == "id" {
			return runVaultID(args[3:])
		}
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "boost"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s tree root --allowlist <file.csv>\n", name)
	fmt.Fprintf(os.Stderr, "  %s tree proof --allowlist <file.csv> --account <address>\n", name)
	fmt.Fprintf(os.Stderr, "  %s leaf --account <address> --amount <decimal>\n", name)
	fmt.Fprintf(os.Stderr, "  %s vault id --creator <address> --asset <address> --total <decimal> --chain-id <n> --ordinal <n>\n", name)
	fmt.Fprintf(os.Stderr, "\nallowlist files carry one \"address,amount\" pair per line; amounts are cumulative entitlements in base units\n")
}

package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"boost/internal/infra/merkle"
	"boost/internal/usecase"

	"github.com/ethereum/go-ethereum/common"
)

// runTreeRoot builds the allowlist commitment an operator installs with the
// set-root operation.
func runTreeRoot(args []string) int {
	fs := flag.NewFlagSet("tree root", flag.ContinueOnError)
	allowlist := fs.String("allowlist", "", "path to allowlist csv")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tree, code := buildTree(*allowlist)
	if code != 0 {
		return code
	}
	fmt.Println(tree.Root().Hex())
	return 0
}

func runTreeProof(args []string) int {
	fs := flag.NewFlagSet("tree proof", flag.ContinueOnError)
	allowlist := fs.String("allowlist", "", "path to allowlist csv")
	account := fs.String("account", "", "claimant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !common.IsHexAddress(*account) {
		fmt.Fprintln(os.Stderr, "error: --account must be a hex address")
		return 1
	}
	entries, code := readAllowlist(*allowlist)
	if code != 0 {
		return code
	}
	tree, err := merkle.Build(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: build tree: %v\n", err)
		return 1
	}

	claimant := common.HexToAddress(*account)
	var amount *big.Int
	for _, entry := range entries {
		if entry.Account == claimant {
			amount = entry.MaxAmount
			break
		}
	}
	if amount == nil {
		fmt.Fprintf(os.Stderr, "error: %s not in allowlist\n", claimant.Hex())
		return 1
	}
	proof, err := tree.Proof(claimant, amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	path := make([]string, 0, len(proof))
	for _, node := range proof {
		path = append(path, node.Hex())
	}
	out := struct {
		Root      string   `json:"root"`
		Account   string   `json:"account"`
		MaxAmount string   `json:"max_amount"`
		Proof     []string `json:"proof"`
	}{
		Root:      tree.Root().Hex(),
		Account:   claimant.Hex(),
		MaxAmount: amount.String(),
		Proof:     path,
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func runLeaf(args []string) int {
	fs := flag.NewFlagSet("leaf", flag.ContinueOnError)
	account := fs.String("account", "", "claimant address")
	amount := fs.String("amount", "", "cumulative entitlement in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !common.IsHexAddress(*account) {
		fmt.Fprintln(os.Stderr, "error: --account must be a hex address")
		return 1
	}
	max, ok := new(big.Int).SetString(*amount, 10)
	if !ok || max.Sign() <= 0 {
		fmt.Fprintln(os.Stderr, "error: --amount must be a positive decimal")
		return 1
	}
	fmt.Println(merkle.LeafHash(common.HexToAddress(*account), max).Hex())
	return 0
}

func runVaultID(args []string) int {
	fs := flag.NewFlagSet("vault id", flag.ContinueOnError)
	creator := fs.String("creator", "", "creator address")
	asset := fs.String("asset", "", "asset address")
	total := fs.String("total", "", "total amount in base units")
	chainID := fs.Uint64("chain-id", 1, "chain id")
	ordinal := fs.Uint64("ordinal", 0, "creation ordinal")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !common.IsHexAddress(*creator) || !common.IsHexAddress(*asset) {
		fmt.Fprintln(os.Stderr, "error: --creator and --asset must be hex addresses")
		return 1
	}
	amount, ok := new(big.Int).SetString(*total, 10)
	if !ok || amount.Sign() <= 0 {
		fmt.Fprintln(os.Stderr, "error: --total must be a positive decimal")
		return 1
	}
	id := usecase.DeriveVaultID(common.HexToAddress(*creator), common.HexToAddress(*asset), amount, *chainID, *ordinal)
	fmt.Println(id.Hex())
	return 0
}

func buildTree(path string) (*merkle.Tree, int) {
	entries, code := readAllowlist(path)
	if code != 0 {
		return nil, code
	}
	tree, err := merkle.Build(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: build tree: %v\n", err)
		return nil, 1
	}
	return tree, 0
}

func readAllowlist(path string) ([]merkle.Entry, int) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "error: --allowlist is required")
		return nil, 1
	}
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, 1
	}
	defer file.Close()

	var entries []merkle.Entry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, ",")
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "error: line %d: expected \"address,amount\"\n", line)
			return nil, 1
		}
		addr := strings.TrimSpace(parts[0])
		if !common.IsHexAddress(addr) {
			fmt.Fprintf(os.Stderr, "error: line %d: invalid address %q\n", line, addr)
			return nil, 1
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(parts[1]), 10)
		if !ok || amount.Sign() <= 0 {
			fmt.Fprintf(os.Stderr, "error: line %d: invalid amount %q\n", line, parts[1])
			return nil, 1
		}
		entries = append(entries, merkle.Entry{
			Account:   common.HexToAddress(addr),
			MaxAmount: amount,
		})
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, 1
	}
	return entries, 0
}

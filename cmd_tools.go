package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <solution>",
	Short: "Print the solution hash of a plaintext solution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), HashSolution(args[0]))
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Issue a bearer token for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("CROSSWORD_JWT_SECRET is required")
		}
		ttl := cfg.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer).Issue(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <puzzles.yaml>",
	Short: "Create puzzles from a YAML file in the configured store, as the owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (overrides CROSSWORD_TOKEN_TTL)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store == "memory" {
		return fmt.Errorf("load needs a persistent store (CROSSWORD_STORE=badger or sqlite)")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	defs, err := ReadPuzzleFile(f)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	store, err := cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	contract := NewContract(cfg.OwnerID, store, nil, WithLogger(logger))
	created, failed := loadPuzzles(cmd, contract, defs)
	fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d skipped\n", created, len(defs)-created-failed)
	if failed > 0 {
		return fmt.Errorf("%d puzzles failed", failed)
	}
	return nil
}

// loadPuzzles creates each definition as the owner. Existing puzzles are
// skipped.
func loadPuzzles(cmd *cobra.Command, contract *Contract, defs []PuzzleDefinition) (created, failed int) {
	for _, def := range defs {
		err := contract.CreatePuzzle(cmd.Context(), contract.Owner(), def.SolutionHash, def.Answers)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDuplicateKey):
			fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: already exists\n", def.SolutionHash)
		default:
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "create %s: %v\n", def.SolutionHash, err)
		}
	}
	return created, failed
}

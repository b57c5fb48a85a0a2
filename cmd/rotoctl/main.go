package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rotoforge/internal/fetch"
	"rotoforge/internal/registry"
	"rotoforge/internal/store"
	"rotoforge/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultDir(sub string) string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rotoforge", sub)
}

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:           "rotoctl",
		Short:         "Manage rotoforged weights and data directories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	weightsDir := root.PersistentFlags().String("weights-dir", defaultDir("weights"), "Directory holding per-tier ONNX weight pairs")
	workDir := root.PersistentFlags().String("work-dir", defaultDir("masksequences"), "Data directory for mask sequences and layer settings")

	weightsCmd := &cobra.Command{Use: "weights", Short: "Download, verify and list model weights", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("weights requires a subcommand: fetch|verify|list")
	}}
	weightsFetch := &cobra.Command{Use: "fetch [tier...]", Short: "Download weight pairs (all tiers when none given)", Example: "  rotoctl weights fetch light huge", RunE: func(cmd *cobra.Command, args []string) error {
		sources := fetch.DefaultSources()
		tiers := types.Tiers()
		if len(args) > 0 {
			tiers = tiers[:0]
			for _, a := range args {
				t := types.Tier(a)
				if !types.ValidTier(t) {
					return fmt.Errorf("unknown tier %q", a)
				}
				tiers = append(tiers, t)
			}
		}
		// Long downloads must not outlive whoever launched us, typically
		// the editor integration spawning rotoctl on the user's behalf.
		ctx, stop := fetch.BindToProcess(cmd.Context(), os.Getppid(), time.Second)
		defer stop()

		f := &fetch.Fetcher{Log: logger}
		for _, tier := range tiers {
			src, ok := fetch.Lookup(sources, tier)
			if !ok {
				return fmt.Errorf("no published source for tier %q", tier)
			}
			if err := f.FetchTier(ctx, *weightsDir, src); err != nil {
				return err
			}
		}
		return nil
	}}
	weightsVerify := &cobra.Command{Use: "verify <tier> <encoder-sha256> <decoder-sha256>", Short: "Check a downloaded pair against known digests", Args: cobra.ExactArgs(3), RunE: func(cmd *cobra.Command, args []string) error {
		tier := types.Tier(args[0])
		if !types.ValidTier(tier) {
			return fmt.Errorf("unknown tier %q", args[0])
		}
		reg, err := registry.ScanDir(*weightsDir)
		if err != nil {
			return err
		}
		w, ok := registry.Lookup(reg, tier)
		if !ok {
			return fmt.Errorf("tier %q has no complete weight pair in %s", tier, *weightsDir)
		}
		if err := fetch.VerifySHA256(w.EncoderPath, args[1]); err != nil {
			return err
		}
		if err := fetch.VerifySHA256(w.DecoderPath, args[2]); err != nil {
			return err
		}
		fmt.Printf("tier %s verified\n", tier)
		return nil
	}}
	weightsList := &cobra.Command{Use: "list", Short: "List complete weight pairs found on disk", RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.ScanDir(*weightsDir)
		if err != nil {
			return err
		}
		if len(reg) == 0 {
			fmt.Printf("no complete weight pairs in %s\n", *weightsDir)
			return nil
		}
		for _, w := range reg {
			fmt.Printf("%-6s %8d MB  %s\n", w.Tier, w.SizeBytes/(1<<20), filepath.Dir(w.EncoderPath))
		}
		return nil
	}}
	weightsCmd.AddCommand(weightsFetch, weightsVerify, weightsList)
	root.AddCommand(weightsCmd)

	migrateCmd := &cobra.Command{Use: "migrate", Short: "Bring the data directory up to the current layout", RunE: func(cmd *cobra.Command, args []string) error {
		return store.MigrateLayout(*workDir, logger)
	}}
	root.AddCommand(migrateCmd)

	daemonAddr := "http://127.0.0.1:7860"
	if v := os.Getenv("ROTOFORGE_ADDR"); v != "" {
		daemonAddr = "http://" + v
	}
	doctorCmd := &cobra.Command{Use: "doctor", Short: "Check weights, data directory and daemon reachability", RunE: func(cmd *cobra.Command, args []string) error {
		failed := false

		reg, err := registry.ScanDir(*weightsDir)
		switch {
		case err != nil:
			fmt.Printf("weights   FAIL  %v\n", err)
			failed = true
		case len(reg) == 0:
			fmt.Printf("weights   FAIL  no complete pairs in %s (run: rotoctl weights fetch)\n", *weightsDir)
			failed = true
		default:
			fmt.Printf("weights   OK    %d tier(s) in %s\n", len(reg), *weightsDir)
		}

		if info, err := os.Stat(*workDir); err != nil || !info.IsDir() {
			fmt.Printf("work dir  WARN  %s does not exist yet (created on first run)\n", *workDir)
		} else {
			fmt.Printf("work dir  OK    %s\n", *workDir)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, daemonAddr+"/status", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("daemon    WARN  not reachable at %s\n", daemonAddr)
		} else {
			defer resp.Body.Close()
			var status types.StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				fmt.Printf("daemon    FAIL  bad /status payload: %v\n", err)
				failed = true
			} else {
				fmt.Printf("daemon    OK    session=%s masks=%d\n", status.Session.State, len(status.Masks))
			}
		}

		if failed {
			return fmt.Errorf("doctor found problems")
		}
		return nil
	}}
	root.AddCommand(doctorCmd)

	return root
}

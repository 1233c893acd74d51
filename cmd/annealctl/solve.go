package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/optimization/solve"
)

// solveFlags are the per-command flags. Flags that were set on the command
// line override the matching field of the instance file.
type solveFlags struct {
	file    string
	output  string
	solver  string
	reads   int
	seed    int64
	greedy  bool
	timeout time.Duration
}

func (f *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Instance file in YAML or JSON (\"-\" reads stdin)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "Output format (json, yaml)")
	cmd.Flags().StringVar(&f.solver, "solver", "", "Solver backend (sa, sqa, qa)")
	cmd.Flags().IntVar(&f.reads, "reads", 0, "Number of reads")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed")
	cmd.Flags().BoolVar(&f.greedy, "greedy", false, "Apply steepest-descent post-processing")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Solve timeout")
	_ = cmd.MarkFlagRequired("file")
}

func (f *solveFlags) apply(cmd *cobra.Command, o *solve.Options) {
	flags := cmd.Flags()
	if flags.Changed("solver") {
		o.Solver = f.solver
	}
	if flags.Changed("reads") {
		reads := f.reads
		o.NumReads = &reads
	}
	if flags.Changed("seed") {
		o.Seed = f.seed
	}
	if flags.Changed("greedy") {
		o.UseGreedy = f.greedy
	}
	if flags.Changed("timeout") {
		o.TimeoutMS = int(f.timeout / time.Millisecond)
	}
}

func newAssignmentCmd(a *app) *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "assignment",
		Short: "Solve an assignment problem",
		Long: "Solve a square assignment problem. The instance file holds a cost matrix " +
			"under \"costs\" and optional penalty_row, penalty_col and solver options.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(f.output); err != nil {
				return err
			}
			var req solve.AssignmentRequest
			if err := readInstance(cmd, f.file, &req); err != nil {
				return err
			}
			f.apply(cmd, &req.Options)

			engine, logger, err := a.engine()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			res, err := engine.SolveAssignment(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), f.output, res)
		},
	}
	f.register(cmd)
	return cmd
}

func newKnapsackCmd(a *app) *cobra.Command {
	f := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "knapsack",
		Short: "Solve a 0/1 knapsack problem",
		Long: "Solve a 0/1 knapsack problem. The instance file holds weights, values and " +
			"capacity, plus an optional penalty and solver options.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(f.output); err != nil {
				return err
			}
			var req solve.KnapsackRequest
			if err := readInstance(cmd, f.file, &req); err != nil {
				return err
			}
			f.apply(cmd, &req.Options)

			engine, logger, err := a.engine()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			res, err := engine.SolveKnapsack(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), f.output, res)
		},
	}
	f.register(cmd)
	return cmd
}

// readInstance decodes a YAML or JSON instance. JSON is read through the
// YAML decoder, which accepts it as a subset.
func readInstance(cmd *cobra.Command, path string, dst interface{}) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return apperrors.Wrapf(err, "read instance %q", path).WithComponent("annealctl")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return apperrors.InvalidShape("file", "instance %q is empty", path)
		}
		return apperrors.WrapKind(err, apperrors.KindInvalidProblemShape,
			fmt.Sprintf("decode instance %q", path)).WithField("file")
	}
	return nil
}

func checkFormat(format string) error {
	switch strings.ToLower(format) {
	case "json", "yaml", "yml":
		return nil
	}
	return apperrors.InvalidParameter("output", "unsupported output format %q, want json or yaml", format)
}

func writeResult(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}

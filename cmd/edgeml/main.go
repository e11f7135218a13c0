// Command edgeml is a small utility around the provider: it precompiles
// model artifacts into a cache directory and inspects packages.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gomlx/go-edgeml/accel/cpu"
	"github.com/gomlx/go-edgeml/config"
	"github.com/gomlx/go-edgeml/model"
	"github.com/gomlx/go-edgeml/runtime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "edgeml",
		Short:         "edge accelerator model tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	logger := func() zerolog.Logger {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
	}

	root.AddCommand(newCompileCmd(logger), newInfoCmd())
	return root
}

func newCompileCmd(logger func() zerolog.Logger) *cobra.Command {
	var cacheDir, configPath string

	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "precompile a model artifact into the cache directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []runtime.Option{runtime.WithLogger(logger())}
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				fromFile, err := cfg.Options()
				if err != nil {
					return err
				}
				opts = append(opts, fromFile...)
			}
			if cacheDir != "" {
				opts = append(opts, runtime.WithCacheDir(cacheDir))
			}

			rt := runtime.New(cpu.New(), opts...)
			src := runtime.ModelPackage(args[0])
			if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
				src = runtime.ModelGraph(args[0])
			}

			sess, err := rt.OpenSession(src)
			if err != nil {
				return err
			}
			defer sess.Close()

			start := time.Now()
			if err := sess.Load(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "compiled %s in %s\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "persistent cache directory for compiled artifacts")
	cmd.Flags().StringVar(&configPath, "config", "", "provider configuration file (yaml/json/toml)")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <package>",
		Short: "print a model package summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := model.LoadPackage(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "program: %s\n", p.Name)
			fmt.Fprintf(out, "inputs:\n")
			for _, in := range p.Inputs {
				fmt.Fprintf(out, "  %s %s %v\n", in.Name, in.DType, in.Shape)
			}
			fmt.Fprintf(out, "outputs:\n")
			for _, o := range p.Outputs {
				fmt.Fprintf(out, "  %s %s %v\n", o.Name, o.DType, o.Shape)
			}
			fmt.Fprintf(out, "constants: %d\n", len(p.Constants))
			fmt.Fprintf(out, "operations: %d\n", len(p.Ops))
			return nil
		},
	}
}

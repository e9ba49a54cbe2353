package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"wrapret/filter"
	"wrapret/pipeline"
	"wrapret/watch"
)

// Script extensions collected when a directory is given as a target.
// Individual file targets bypass this list.
var scriptExts = map[string]bool{
	".js":  true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
}

// Execute runs the wrapret CLI with the given version string.
func Execute(version string) {
	cmd := &cli.Command{
		Name:                   "wrapret",
		Usage:                  "Wrap early-return script bodies so they parse as standalone modules",
		Version:                version,
		UseShortOptionHandling: true,
		// Allow `wrapret script.js` as shorthand for `wrapret transform script.js`
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() > 0 {
				if info, err := os.Stat(cmd.Args().First()); err == nil && !info.IsDir() {
					p := pipeline.New(pipeline.Options{})
					res := p.TransformFile(cmd.Args().First(), pipeline.WriteOptions{})
					return res.Err
				}
			}
			return cli.DefaultShowRootCommandHelp(cmd)
		},
		Commands: []*cli.Command{
			{
				Name:      "transform",
				Usage:     "Transform files or directories",
				ArgsUsage: "<file|dir> [...]",
				Flags:     append(filterFlags(), transformFlags()...),
				Action:    transformAction,
			},
			{
				Name:      "check",
				Usage:     "Report import statements below the import region without writing output",
				ArgsUsage: "<file|dir> [...]",
				Flags: append(filterFlags(),
					&cli.BoolFlag{
						Name:    "no-color",
						Aliases: []string{"C"},
						Usage:   "Disable ANSI color output",
					},
				),
				Action: checkAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"i"},
			Usage:   "Glob pattern files must match to be transformed (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "exclude",
			Aliases: []string{"x"},
			Usage:   "Glob pattern for files to leave untouched (repeatable)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log per-file decisions",
		},
	}
}

func transformFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Write transformed files under this directory",
		},
		&cli.BoolFlag{
			Name:    "write",
			Aliases: []string{"w"},
			Usage:   "Overwrite input files in place",
		},
		&cli.IntFlag{
			Name:    "jobs",
			Aliases: []string{"j"},
			Usage:   "Parallel workers",
			Value:   1,
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "Keep running and re-transform files as they change",
		},
	}
}

func buildPipeline(cmd *cli.Command) (*pipeline.Pipeline, *filter.Filter, error) {
	f, err := filter.New(cmd.StringSlice("include"), cmd.StringSlice("exclude"))
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "wrapret"})
	if cmd.Bool("verbose") {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.WarnLevel)
	}
	return pipeline.New(pipeline.Options{Filter: f, Logger: logger}), f, nil
}

func transformAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: wrapret transform <file|dir> [...]")
	}
	p, f, err := buildPipeline(cmd)
	if err != nil {
		return err
	}
	files, err := collectFiles(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no script files found")
	}

	opts := pipeline.WriteOptions{OutDir: cmd.String("out"), InPlace: cmd.Bool("write")}
	if opts.OutDir == "" && !opts.InPlace && len(files) > 1 && !cmd.Bool("watch") {
		return fmt.Errorf("multiple files need --out or --write")
	}

	runAll := func(paths []string) error {
		results := p.Run(paths, int(cmd.Int("jobs")), opts)
		if failed := pipeline.FailedCount(results); failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(results))
		}
		return nil
	}

	if cmd.Bool("watch") {
		base := cmd.Args().First()
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			base = filepath.Dir(base)
		}
		w, err := watch.New(watch.Config{
			BaseDir: base,
			Filter:  f,
			Exts:    scriptExts,
			OnChange: func(ctx context.Context, changed []string) error {
				// Paths arrive BaseDir-joined, the same shape the
				// initial collectFiles pass produced.
				return runAll(changed)
			},
		})
		if err != nil {
			return err
		}
		if err := runAll(files); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return w.Run(ctx)
	}

	return runAll(files)
}

func checkAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: wrapret check <file|dir> [...]")
	}
	p, _, err := buildPipeline(cmd)
	if err != nil {
		return err
	}
	files, err := collectFiles(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no script files found")
	}

	colorFail, colorReset := "\033[31m", "\033[0m"
	if cmd.Bool("no-color") || os.Getenv("NO_COLOR") != "" ||
		!term.IsTerminal(int(os.Stderr.Fd())) {
		colorFail, colorReset = "", ""
	}

	violations := 0
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		if _, err := p.Check(string(src), file); err != nil {
			violations++
			fmt.Fprintf(os.Stderr, "%s%v%s\n", colorFail, err, colorReset)
		}
	}
	if violations > 0 {
		return fmt.Errorf("%d violations in %d files", violations, len(files))
	}
	return nil
}

// collectFiles expands directory targets into script files, skipping
// .git and node_modules. Explicit file targets are taken as-is.
func collectFiles(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", target, err)
		}
		if !info.IsDir() {
			files = append(files, target)
			continue
		}
		err = filepath.WalkDir(target, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			if scriptExts[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", target, err)
		}
	}
	return files, nil
}

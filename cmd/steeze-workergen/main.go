// Command steeze-workergen wires annotated worker functions to the host entry
// points. Run it from a go:generate line:
//
//	//go:generate go run github.com/joeydtaylor/steeze-worker/cmd/steeze-workergen
//
// It rewrites $GOFILE in place (renaming annotated functions only) and writes
// the companion <name>_entry.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joeydtaylor/steeze-worker/pkg/gen"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	file := flag.String("file", os.Getenv("GOFILE"), "source file holding the //steeze:event functions")
	dryRun := flag.Bool("n", false, "print the entry file instead of writing anything")
	flag.Parse()

	log := newLogger()
	defer func() { _ = log.Sync() }()

	if *file == "" {
		log.Fatal("no input file: pass -file or run under go generate")
	}
	if err := run(*file, *dryRun, log); err != nil {
		log.Fatal("generate failed", zap.String("file", *file), zap.Error(err))
	}
}

func run(file string, dryRun bool, log *zap.Logger) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	res, err := gen.Generate(file, src)
	if err != nil {
		return err
	}
	if len(res.Funcs) == 0 {
		log.Warn("no //steeze:event functions found", zap.String("file", file))
		return nil
	}
	if dryRun {
		_, err := fmt.Fprint(os.Stdout, string(res.Entry))
		return err
	}

	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if res.Renamed(src) {
		if err := os.WriteFile(file, res.Source, info.Mode().Perm()); err != nil {
			return err
		}
	}
	out := gen.EntryFileName(file)
	if err := os.WriteFile(out, res.Entry, 0o644); err != nil {
		return err
	}
	for _, f := range res.Funcs {
		log.Info("entry generated",
			zap.String("kind", string(f.Kind)),
			zap.String("func", f.Name),
			zap.String("glue", f.Glue),
			zap.Bool("respondWithErrors", f.RespondWithErrors),
			zap.String("out", out),
		)
	}
	return nil
}

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), zap.InfoLevel))
}

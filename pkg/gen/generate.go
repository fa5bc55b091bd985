package gen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"
)

// Func is one annotated function.
type Func struct {
	Name string // name as written by the user
	Glue string // internal name after renaming
	Options
}

// Result is the output of Generate.
type Result struct {
	Package string
	Funcs   []Func
	// Source is the input with annotated functions renamed.
	Source []byte
	// Entry is the companion file declaring the host-visible wrappers.
	Entry []byte
}

// Renamed reports whether Source differs from the input.
func (r *Result) Renamed(src []byte) bool { return !bytes.Equal(r.Source, src) }

// EntryFileName is the companion file written next to filename.
func EntryFileName(filename string) string {
	dir, base := filepath.Split(filename)
	return filepath.Join(dir, strings.TrimSuffix(base, ".go")+"_entry.go")
}

type splice struct {
	off  int
	n    int
	with string
}

// Generate processes one source file. A file without directives yields a
// Result with no Funcs and no Entry.
func Generate(filename string, src []byte) (*Result, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	declared := map[string]bool{}
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil {
			declared[fd.Name.Name] = true
		}
	}

	res := &Result{Package: file.Name.Name}
	seen := map[Kind]string{}
	var edits []splice

	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Doc == nil {
			continue
		}
		opts, found, err := findDirective(fd.Doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fset.Position(fd.Pos()), fd.Name.Name, err)
		}
		if !found {
			continue
		}
		if fd.Recv != nil {
			return nil, fmt.Errorf("%s: %s: methods cannot be entry points", fset.Position(fd.Pos()), fd.Name.Name)
		}
		if fd.Type.TypeParams != nil {
			return nil, fmt.Errorf("%s: %s: generic functions cannot be entry points", fset.Position(fd.Pos()), fd.Name.Name)
		}
		if prev, dup := seen[opts.Kind]; dup {
			return nil, fmt.Errorf("%s: %s: %s already implemented by %s", fset.Position(fd.Pos()), fd.Name.Name, opts.Kind, prev)
		}
		if err := checkArity(fd, opts.Kind); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fset.Position(fd.Pos()), fd.Name.Name, err)
		}

		name := fd.Name.Name
		suffix := opts.Kind.GlueSuffix()
		glue := name
		if strings.HasSuffix(name, suffix) && name != suffix {
			// already renamed by an earlier run
			name = strings.TrimSuffix(name, suffix)
		} else {
			glue = name + suffix
			if declared[glue] {
				return nil, fmt.Errorf("%s: %s: glue name %s is already declared", fset.Position(fd.Pos()), name, glue)
			}
			edits = append(edits, splice{
				off:  fset.Position(fd.Name.Pos()).Offset,
				n:    len(fd.Name.Name),
				with: glue,
			})
		}
		seen[opts.Kind] = name
		res.Funcs = append(res.Funcs, Func{Name: name, Glue: glue, Options: opts})
	}

	for _, f := range res.Funcs {
		wire := string(f.Kind)
		if declared[wire] && f.Name != wire {
			return nil, fmt.Errorf("%s: %s is declared and would collide with the generated %s entry", filename, wire, wire)
		}
	}

	res.Source = applySplices(src, edits)
	if len(res.Funcs) == 0 {
		return res, nil
	}

	entry, err := renderEntry(filename, res)
	if err != nil {
		return nil, err
	}
	res.Entry = entry
	return res, nil
}

func findDirective(doc *ast.CommentGroup) (Options, bool, error) {
	for _, c := range doc.List {
		args, ok := directiveArgs(c.Text)
		if !ok {
			continue
		}
		opts, err := ParseDirective(args)
		return opts, true, err
	}
	return Options{}, false, nil
}

func checkArity(fd *ast.FuncDecl, k Kind) error {
	wantParams, wantResults := k.arity()
	params := countFields(fd.Type.Params)
	results := countFields(fd.Type.Results)
	if params != wantParams || results != wantResults {
		return fmt.Errorf("%s entry needs %d parameters and %d results, got %d and %d",
			k, wantParams, wantResults, params, results)
	}
	return nil
}

func countFields(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			n++
			continue
		}
		n += len(f.Names)
	}
	return n
}

// applySplices replaces identifier bytes only; everything else is copied
// through untouched.
func applySplices(src []byte, edits []splice) []byte {
	if len(edits) == 0 {
		return src
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].off < edits[j].off })
	var out bytes.Buffer
	last := 0
	for _, e := range edits {
		out.Write(src[last:e.off])
		out.WriteString(e.with)
		last = e.off + e.n
	}
	out.Write(src[last:])
	return out.Bytes()
}

var entryTmpl = template.Must(template.New("entry").Parse(`// Code generated by steeze-workergen from {{.Source}}. DO NOT EDIT.

package {{.Package}}

import (
{{- if .NeedsHost}}
	"context"

	"github.com/joeydtaylor/steeze-worker/pkg/host"
{{- end}}
	"github.com/joeydtaylor/steeze-worker/pkg/worker"
)
{{range .Funcs}}{{if eq .Kind "fetch"}}
var fetchEntry = worker.NewFetch({{.Glue}}{{if .RespondWithErrors}}, worker.RespondWithErrors(true){{end}})

// fetch is the host-visible on-request entry point.
func fetch(ctx context.Context, req host.Request, env host.Env, hctx host.Context) host.Response {
	return fetchEntry(ctx, req, env, hctx)
}
{{else if eq .Kind "scheduled"}}
var scheduledEntry = worker.NewScheduled({{.Glue}})

// scheduled is the host-visible on-schedule entry point.
func scheduled(ctx context.Context, ev host.ScheduledEvent, env host.Env, sctx host.ScheduleContext) {
	scheduledEntry(ctx, ev, env, sctx)
}
{{else if eq .Kind "start"}}
var startEntry = worker.NewStart({{.Glue}})

// start is the host-visible on-start entry point.
func start() {
	startEntry()
}
{{end}}{{end}}
func init() {
{{- range .Funcs}}{{if eq .Kind "fetch"}}
	worker.Default.ExportFetch(fetch){{else if eq .Kind "scheduled"}}
	worker.Default.ExportScheduled(scheduled){{else if eq .Kind "start"}}
	worker.Default.ExportStart(start){{end}}{{end}}
}
`))

func renderEntry(filename string, res *Result) ([]byte, error) {
	var buf bytes.Buffer
	needsHost := false
	for _, f := range res.Funcs {
		if f.Kind != KindStart {
			needsHost = true
		}
	}
	err := entryTmpl.Execute(&buf, struct {
		Source    string
		Package   string
		Funcs     []Func
		NeedsHost bool
	}{
		Source:    filepath.Base(filename),
		Package:   res.Package,
		Funcs:     res.Funcs,
		NeedsHost: needsHost,
	})
	if err != nil {
		return nil, err
	}
	out, err := imports.Process(EntryFileName(filename), buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("format entry file: %w", err)
	}
	return out, nil
}

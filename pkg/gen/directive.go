// Package gen wires annotated worker functions to the host entry points at
// build time.
//
// A top-level function is annotated with a directive comment:
//
//	//steeze:event fetch,respond_with_errors
//	func Main(ctx context.Context, env worker.Env, c *worker.Context) (service.Service, error) { ... }
//
// Generate renames the function to an internal glue name, leaving its body
// untouched, and emits a companion file declaring the fetch, scheduled or
// start wrapper and registering it in worker.Default.
package gen

import (
	"errors"
	"fmt"
	"strings"
)

// Directive marks an annotated function.
const Directive = "//steeze:event"

// Kind is the entry point a function implements.
type Kind string

const (
	KindFetch     Kind = "fetch"
	KindScheduled Kind = "scheduled"
	KindStart     Kind = "start"
)

const attrRespondWithErrors = "respond_with_errors"

// GlueSuffix is appended to the name of an annotated function.
func (k Kind) GlueSuffix() string {
	switch k {
	case KindFetch:
		return "FetchGlue"
	case KindScheduled:
		return "ScheduledGlue"
	case KindStart:
		return "StartGlue"
	}
	return ""
}

// arity is the (params, results) count a function of this kind must have.
func (k Kind) arity() (int, int) {
	switch k {
	case KindFetch:
		return 3, 2
	case KindScheduled:
		return 4, 1
	default:
		return 0, 0
	}
}

// Options are the arguments of one directive.
type Options struct {
	Kind              Kind
	RespondWithErrors bool
}

var ErrMissingKind = errors.New("must have either 'fetch', 'scheduled', or 'start' attribute, e.g. //steeze:event fetch")

// ParseDirective parses the comma separated attributes following the
// directive. Exactly one kind is required; respond_with_errors is only valid
// with fetch.
func ParseDirective(args string) (Options, error) {
	var o Options
	for _, raw := range strings.Split(args, ",") {
		attr := strings.TrimSpace(raw)
		switch attr {
		case "":
			continue
		case string(KindFetch), string(KindScheduled), string(KindStart):
			if o.Kind != "" {
				return Options{}, fmt.Errorf("more than one entry kind: %s and %s", o.Kind, attr)
			}
			o.Kind = Kind(attr)
		case attrRespondWithErrors:
			o.RespondWithErrors = true
		default:
			return Options{}, fmt.Errorf("invalid attribute: %s", attr)
		}
	}
	if o.Kind == "" {
		return Options{}, ErrMissingKind
	}
	if o.RespondWithErrors && o.Kind != KindFetch {
		return Options{}, fmt.Errorf("%s only applies to fetch", attrRespondWithErrors)
	}
	return o, nil
}

// directiveArgs returns the text after the directive, or false when the
// comment is not a directive.
func directiveArgs(comment string) (string, bool) {
	rest, ok := strings.CutPrefix(comment, Directive)
	if !ok {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

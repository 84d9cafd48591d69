package dsl

import (
	"regexp"
	"strings"
)

// ValidationIssue is a single validator finding: a hard "error" rejects the
// plan, a "warning" (e.g. a forward reference) is surfaced but non-fatal.
type ValidationIssue struct {
	Kind    string // "error" | "warning"
	Message string
	Line    int
}

// ValidationResult collects every issue found by Validate.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

func (r *ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(msg string, line int) {
	r.Errors = append(r.Errors, ValidationIssue{Kind: "error", Message: msg, Line: line})
}

func (r *ValidationResult) addWarning(msg string, line int) {
	r.Warnings = append(r.Warnings, ValidationIssue{Kind: "warning", Message: msg, Line: line})
}

var validVarRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
var nameTokenRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

var literalNames = map[string]bool{"True": true, "False": true, "None": true}

// Validate runs the pre-compile validator pass (§SUPPLEMENTED FEATURES #1):
// it reports undefined-variable forward references as warnings, illegal
// assignment targets, reserved keywords, and unsafe expression text as
// errors. It never mutates the AST.
func Validate(root *Root) *ValidationResult {
	vr := &ValidationResult{}
	defined := map[string]bool{}

	var visit func(n Node)
	visit = func(n Node) {
		switch t := n.(type) {
		case nil:
			return
		case *Assign:
			if !validVarRE.MatchString(t.Target) {
				vr.addError("invalid assignment target '"+t.Target+"'", t.LineNo)
			} else {
				defined[t.Target] = true
			}
			visit(t.Value)
		case *TaskCall:
			for k, v := range t.Args {
				if !validVarRE.MatchString(k) {
					vr.addError("invalid argument name '"+k+"' in call "+t.Name+"()", t.LineNo)
				}
				if e, ok := v.(*Expr); ok {
					for _, tok := range nameTokenRE.FindAllString(e.Text, -1) {
						if !defined[tok] && !literalNames[tok] {
							vr.addWarning("possible forward reference to '"+tok+"' in argument of "+t.Name+"()", t.LineNo)
						}
					}
					visit(e)
				}
			}
		case *If:
			if t.Condition == nil || t.Condition.Text == "" {
				vr.addError("empty if condition", t.LineNo)
			} else {
				visit(t.Condition)
			}
			if len(t.Body) == 0 {
				vr.addWarning("if statement has empty body", t.LineNo)
			}
			for _, s := range t.Body {
				visit(s)
			}
			for _, s := range t.OrElse {
				visit(s)
			}
		case *For:
			if !validVarRE.MatchString(t.Iterator) {
				vr.addError("invalid iterator variable '"+t.Iterator+"'", t.LineNo)
			}
			if len(t.Body) == 0 {
				vr.addWarning("for loop has empty body", t.LineNo)
			}
			if e, ok := t.Iterable.(*Expr); !ok || e == nil || e.Text == "" {
				vr.addError("for loop iterable expression is empty", t.LineNo)
			} else {
				visit(e)
			}
			for _, s := range t.Body {
				visit(s)
			}
		case *Retry:
			if t.Attempts < 1 || t.Attempts > 100 {
				vr.addError("retry attempts must be between 1 and 100", t.LineNo)
			}
			if len(t.Body) == 0 {
				vr.addWarning("retry block has empty body", t.LineNo)
			}
			for _, s := range t.Body {
				visit(s)
			}
		case *Expr:
			for _, forbidden := range []string{"__import__", "eval(", "exec("} {
				if strings.Contains(t.Text, forbidden) {
					vr.addError("unsafe expression detected in '"+t.Text+"'", t.LineNo)
				}
			}
		case *Value:
			// literals are always safe
		}
	}

	for _, s := range root.Statements {
		visit(s)
	}

	for _, reserved := range []string{"if", "for", "retry", "task", "else", "in"} {
		if defined[reserved] {
			vr.addError("reserved keyword used as variable name: '"+reserved+"'", 0)
		}
	}

	return vr
}

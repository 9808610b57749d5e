package executor

import (
	"fmt"
	"strings"
)

// FailureKind classifies why an action did not succeed.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailurePathRejected    FailureKind = "path_rejected"
	FailureCommandRejected FailureKind = "command_rejected"
	FailureCommand         FailureKind = "command_failed"
	FailureNoOp            FailureKind = "no_op"
	FailureIO              FailureKind = "io_error"
)

// Outcome is the result of executing one action batch.
type Outcome struct {
	Success          bool
	Kind             FailureKind
	FailedIdentifier string
	ErrorMessage     string
	ChangedFiles     []string
	CreatedPaths     []string
	DeletedPaths     []string
	Warnings         []string
}

// Touched is every path the batch changed, created or deleted.
func (o Outcome) Touched() []string {
	out := make([]string, 0, len(o.ChangedFiles)+len(o.CreatedPaths)+len(o.DeletedPaths))
	out = append(out, o.ChangedFiles...)
	out = append(out, o.CreatedPaths...)
	out = append(out, o.DeletedPaths...)
	return out
}

func (o Outcome) String() string {
	if !o.Success {
		return fmt.Sprintf("FAILED (%s) at %q: %s", o.Kind, o.FailedIdentifier, o.ErrorMessage)
	}
	var parts []string
	if len(o.ChangedFiles) > 0 {
		parts = append(parts, "changed: "+strings.Join(o.ChangedFiles, ", "))
	}
	if len(o.CreatedPaths) > 0 {
		parts = append(parts, "created: "+strings.Join(o.CreatedPaths, ", "))
	}
	if len(o.DeletedPaths) > 0 {
		parts = append(parts, "deleted: "+strings.Join(o.DeletedPaths, ", "))
	}
	return "OK (" + strings.Join(parts, "; ") + ")"
}

func failure(kind FailureKind, id, msg string) Outcome {
	return Outcome{Kind: kind, FailedIdentifier: id, ErrorMessage: msg}
}

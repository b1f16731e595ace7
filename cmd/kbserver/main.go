// Package main provides the entry point for the kbserver CLI.
package main

import (
	"errors"
	"os"

	"github.com/kbserver/kbserver/cmd/kbserver/cmd"
	kberrors "github.com/kbserver/kbserver/internal/errors"
)

// exitCode maps the core error taxonomy to spec.md §6's CLI exit codes:
// 0 success, 1 user error, 2 transient failure, 3 fatal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var kerr *kberrors.KBError
	if errors.As(err, &kerr) {
		switch kerr.Category {
		case kberrors.CategoryValidation, kberrors.CategoryNotFound, kberrors.CategoryConflict:
			return 1
		case kberrors.CategoryDependency:
			return 2
		case kberrors.CategoryIntegrity, kberrors.CategoryFatal:
			return 3
		}
	}
	return 1
}

func main() {
	os.Exit(exitCode(cmd.Execute()))
}

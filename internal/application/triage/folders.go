package triage

import (
	"strings"

	"golang.org/x/text/cases"

	"emailfilter/internal/domain/mail"
)

// DefaultJunkFolderNames are matched case-insensitively against folder display names.
var DefaultJunkFolderNames = []string{"junk email", "junk"}

// FindJunkFolder returns the first folder whose display name matches one of names.
func FindJunkFolder(folders []mail.Folder, names []string) (mail.Folder, bool) {
	if len(names) == 0 {
		names = DefaultJunkFolderNames
	}

	fold := cases.Fold()
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[fold.String(strings.TrimSpace(n))] = struct{}{}
	}

	for _, f := range folders {
		if _, ok := want[fold.String(strings.TrimSpace(f.DisplayName))]; ok {
			return f, true
		}
	}
	return mail.Folder{}, false
}

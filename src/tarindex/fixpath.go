package tarindex

import (
	"strings"
)

// PathMod maps request paths onto archive entry names. BaseDir is stripped from the front of a
// path and replaced with ModDir, the directory inside the archive that requests are rooted at.
type PathMod struct {
	BaseDir string
	ModDir  string
}

// FixPath rewrites orig. A trailing separator survives the rewrite, since it distinguishes
// directory names in an archive.
func (mod PathMod) FixPath(orig string) string {
	if strings.HasPrefix(orig, mod.BaseDir) {
		return strings.Replace(orig, mod.BaseDir, mod.ModDir, 1)
	}
	if orig+"/" == mod.BaseDir {
		return mod.ModDir
	}
	return mod.ModDir + strings.TrimPrefix(orig, "/")
}

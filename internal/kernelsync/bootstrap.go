package kernelsync

import (
	"fmt"
	"strconv"
	"strings"
)

// fileProgram returns the bootstrap code that materializes one runtime file
// inside the kernel filesystem: decode the payload, create parent directories,
// write the file.
func fileProgram(path, contentBase64 string) string {
	var b strings.Builder
	b.WriteString("import base64, os\n")
	fmt.Fprintf(&b, "_p = %s\n", pyString(path))
	b.WriteString("os.makedirs(os.path.dirname(_p) or \".\", exist_ok=True)\n")
	b.WriteString("with open(_p, \"wb\") as _f:\n")
	fmt.Fprintf(&b, "    _f.write(base64.b64decode(%s))\n", pyString(contentBase64))
	return b.String()
}

// pathProgram returns the bootstrap code that extends the interpreter's module
// search path and selects a working directory. Candidate directories are
// created if absent and prepended to the search path only when they are real
// directories. The working directory is the second candidate when at least two
// exist: the first is typically the filesystem root mount, the second the
// notebook's own workspace directory.
func pathProgram(paths []string) string {
	var b strings.Builder
	b.WriteString("import os, sys\n")
	b.WriteString("_targets = [")
	for i, p := range paths {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pyString(p))
	}
	b.WriteString("]\n")
	b.WriteString("for _p in _targets:\n")
	b.WriteString("    os.makedirs(_p, exist_ok=True)\n")
	b.WriteString("    if os.path.isdir(_p) and _p not in sys.path:\n")
	b.WriteString("        sys.path.insert(0, _p)\n")
	b.WriteString("if len(_targets) >= 2:\n")
	b.WriteString("    os.chdir(_targets[1])\n")
	b.WriteString("elif _targets:\n")
	b.WriteString("    os.chdir(_targets[0])\n")
	return b.String()
}

// pyString renders s as a quoted literal valid in the kernel language.
// Go's escaping (\", \\, \n, \xNN, \uNNNN) is a compatible subset.
func pyString(s string) string {
	return strconv.Quote(s)
}

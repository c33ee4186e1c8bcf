package debug

import (
	"os"
	"strings"
)

// IsDebuggerAttached reports whether the program runs under VS Code or
// Delve. Command timeouts are meaningless when stepping through code.
func IsDebuggerAttached() bool {
	if os.Getenv("VSCODE_DEBUG_MODE") != "" || os.Getenv("DELVE_DEBUGGER") != "" {
		return true
	}
	// binaries built by dlv
	return strings.Contains(os.Args[0], "__debug_bin")
}

// Package dockbox packages a command-line tool into a container image and runs it
// against a mounted working directory, forwarding arguments verbatim.
package dockbox

import (
	"github.com/streamingfast/logging"
)

var zlog, _ = logging.PackageLogger("dockbox", "github.com/streamingfast/dockbox")

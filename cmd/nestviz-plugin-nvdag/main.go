// nestviz-plugin-nvdag serves the bundled nvdag layout over the binary plugin protocol. It
// is mostly useful for testing nvplugin.ExecPlugin and as a template for other engines.
package main

import (
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvplugin"
)

func main() {
	xmain.Main(nvplugin.Serve(&nvplugin.NVDagPlugin))
}

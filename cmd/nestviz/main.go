package main

import (
	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvcli"
)

func main() {
	xmain.Main(nvcli.Run)
}

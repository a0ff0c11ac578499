package nvcli

import (
	"context"

	"oss.terrastruct.com/xdefer"

	"oss.terrastruct.com/nestviz/lib/xmain"
	"oss.terrastruct.com/nestviz/nvgraph"
	"oss.terrastruct.com/nestviz/nvlayouts/nvprep"
)

func validateCmd(ctx context.Context, ms *xmain.State) (err error) {
	defer xdefer.Errorf(&err, "failed to validate")

	args := ms.Opts.Flags.Args()[1:]
	if len(args) == 0 {
		return xmain.UsageErrorf("validate must be passed an input file to be validated")
	}

	inputPath := ms.AbsPath(args[0])
	input, err := ms.ReadPath(inputPath)
	if err != nil {
		return err
	}

	var g nvgraph.Graph
	err = nvgraph.DeserializeGraph(input, &g)
	if err != nil {
		return err
	}
	err = g.Validate()
	if err != nil {
		return err
	}
	_, err = nvprep.Preprocess(&g, nil)
	if err != nil {
		return err
	}
	ms.Log.Success.Printf("%s is valid", ms.HumanPath(inputPath))
	return nil
}

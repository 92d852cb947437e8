package main

import (
	"fmt"
	"os"

	"github.com/mediagallery/gallery-api/internal/tools/common"
	tool "github.com/mediagallery/gallery-api/internal/tools/obscheck"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(common.ExitCode(err))
	}
}

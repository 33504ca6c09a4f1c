package main

import (
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/zqzqsb/systrace/cmd/systrace/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var exit *cli.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		os.Exit(1)
	}
}

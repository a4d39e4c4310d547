package main

import (
	"fmt"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/pretty"
)

func defaultLogger(globalOpts GlobalOptions) logging.Port {
	return logging.DefaultLogger(globalOpts.Verbose)
}

// printResult renders rows per globalOpts.Output, matching the
// teacher's cmd/nimbus output-mode switch.
func printResult[T any](globalOpts GlobalOptions, rows []T) {
	switch globalOpts.Output {
	case OutputJSON:
		fmt.Println(pretty.EncodeJSON(rows))
	case OutputYAML:
		fmt.Println(pretty.EncodeYAML(rows))
	case OutputTableWide:
		fmt.Println(pretty.Table(rows, true))
	default:
		fmt.Println(pretty.Table(rows, false))
	}
}

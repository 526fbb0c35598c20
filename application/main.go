package main

import (
	"github.com/alecthomas/kong"

	"tsforecast/logging"
)

// main parses the command line and runs the selected command:
//
//	tsforecast dataset --target a.csv --index 0 --index 5
//	tsforecast filter --target a.csv --covariate u.csv --out-dir out
func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tsforecast"),
		kong.Description("Windowed training datasets and Kalman filtering for time series."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	logging.Close()
	ctx.FatalIfErrorf(err)
}

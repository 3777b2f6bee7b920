// cmd/printerctl/main.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
)

var (
	flgConfig  = cli.StringFlag{Name: "config, c", Usage: "Path to a config file (default: ./config.yaml when present)"}
	flgTimeout = cli.DurationFlag{Name: "tmo, t", Value: 30 * time.Second, Usage: "Timeout for the command"}
	flgAddr    = cli.StringFlag{Name: "addr, a", Usage: "Printer address; empty scans and picks the best candidate"}
	flgName    = cli.StringFlag{Name: "name, n", Usage: "Advertised name prefix to match"}
	flgAll     = cli.BoolFlag{Name: "all", Usage: "Accept every advertisement while scanning"}
	flgVerbose = cli.BoolFlag{Name: "verbose, v", Usage: "Log at debug level"}
)

func main() {
	app := cli.NewApp()

	app.Name = "printerctl"
	app.Usage = "Drive a Bluetooth receipt printer without the HTTP service"
	app.Version = "1.0.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{flgConfig, flgVerbose}

	app.Commands = []cli.Command{
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "List printer candidates in range",
			Action:  scan,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration, d", Value: 10 * time.Second, Usage: "Scan duration"},
				flgName,
				flgAll,
			},
		},
		{
			Name:      "print",
			Aliases:   []string{"p"},
			Usage:     "Print a receipt JSON file",
			ArgsUsage: "<receipt.json>",
			Action:    printReceipt,
			Flags:     []cli.Flag{flgAddr, flgName, flgTimeout},
		},
		{
			Name:   "test",
			Usage:  "Print a short test receipt",
			Action: testPrint,
			Flags:  []cli.Flag{flgAddr, flgName, flgTimeout},
		},
		{
			Name:    "drawer",
			Aliases: []string{"d"},
			Usage:   "Send the cash drawer kick pulse",
			Action:  openDrawer,
			Flags:   []cli.Flag{flgAddr, flgName, flgTimeout},
		},
		{
			Name:      "preview",
			Usage:     "Compile a receipt JSON file and print the ESC/POS bytes as hex",
			ArgsUsage: "<receipt.json>",
			Action:    preview,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "printerctl: %v\n", err)
		os.Exit(1)
	}
}

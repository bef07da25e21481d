package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

// Context represents the global context for commands
type Context struct {
	context.Context
	Config   string
	LogLevel string
	Out      io.Writer
}

// CLI represents the command-line interface
type CLI struct {
	Config   string `help:"Configuration file path" default:"snowclient.yaml" short:"c" type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error); overrides log.level" name:"log-level"`

	Load     LoadCmd     `cmd:"" help:"Load a CSV file or a source query into a table, creating or altering it as needed"`
	Validate ValidateCmd `cmd:"" help:"Add columns missing from a table to match a CSV file"`
	Fetch    FetchCmd    `cmd:"" help:"Fetch every row of a table"`
	Query    QueryCmd    `cmd:"" help:"Run a SQL statement"`
	Journal  JournalCmd  `cmd:"" help:"Show the load journal"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// VersionCmd represents the version command
type VersionCmd struct{}

// Run executes the version command
func (cmd *VersionCmd) Run(ctx *Context) error {
	fmt.Fprintf(ctx.Out, "snowclient %s\n", version)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("snowclient"),
		kong.Description("Load, fetch and query Snowflake tables."),
		kong.UsageOnError(),
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := &Context{
		Context:  sigCtx,
		Config:   cli.Config,
		LogLevel: cli.LogLevel,
		Out:      os.Stdout,
	}

	if err := kctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

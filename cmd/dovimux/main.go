package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"dovimux/internal/cli"
)

var version = "dev"

const helpBanner = "" +
	"██████╗  ██████╗ ██╗   ██╗██╗███╗   ███╗██╗   ██╗██╗  ██╗\n" +
	"██╔══██╗██╔═══██╗██║   ██║██║████╗ ████║██║   ██║╚██╗██╔╝\n" +
	"██║  ██║██║   ██║██║   ██║██║██╔████╔██║██║   ██║ ╚███╔╝ \n" +
	"██║  ██║██║   ██║╚██╗ ██╔╝██║██║╚██╔╝██║██║   ██║ ██╔██╗ \n" +
	"██████╔╝╚██████╔╝ ╚████╔╝ ██║██║ ╚═╝ ██║╚██████╔╝██╔╝ ██╗\n" +
	"╚═════╝  ╚═════╝   ╚═══╝  ╚═╝╚═╝     ╚═╝ ╚═════╝ ╚═╝  ╚═╝"

const helpTemplate = helpBanner + `

{{with or .Long .Short}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`

var opts cli.Options

var rootCmd = &cobra.Command{
	Use:   "dovimux",
	Short: "Combine an HDR10(+) stream and a Dolby Vision grading into one hybrid MKV.",
	Long: "dovimux muxes the Dolby Vision RPU of one source into the HDR10 video of\n" +
		"another, with optional frame-accurate delay correction and HDR10+ metadata\n" +
		"injection. Pass directories for --hdr and --dv to process matched pairs in\n" +
		"batch mode.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cli.Run(cmd.Context(), opts, os.Stdin, cmd.OutOrStdout())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print dovimux version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dovimux %s\n", resolveVersion())
	},
	DisableFlagsInUseLine: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&opts.HDRPath, "hdr", "", "HDR10 input file or directory")
	flags.StringVar(&opts.DVPath, "dv", "", "Dolby Vision input file or directory")
	flags.StringVar(&opts.HDR10PlusPath, "hdr10plus", "", "HDR10+ source file (optional)")
	flags.StringVarP(&opts.OutputPath, "output", "o", "", "output file (single) or directory (batch)")
	flags.Float64Var(&opts.DVDelayMs, "delay", 0, "Dolby Vision delay in milliseconds")
	flags.Float64Var(&opts.HDR10PlusDelayMs, "hdr10plus-delay", 0, "HDR10+ delay in milliseconds")
	flags.BoolVar(&opts.KeepTemp, "keep", false, "keep temporary files")
	flags.StringVar(&opts.ConfigPath, "config", "", "tool paths config file (YAML)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func resolveVersion() string {
	if version != "" && version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

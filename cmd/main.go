package main

import (
	"io"
	"os"

	"github.com/deepgram/coursechat/pkg/logger"
	"github.com/spf13/cobra"
)

func main() {
	logger.Init()

	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		logger.Error(logger.APP, "coursechat failed: %v", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "coursechat",
		Short:         "Course advisor chat client and reference assistant service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.AddCommand(newChatCmd(), newServeCmd())
	return root
}

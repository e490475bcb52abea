// Package main is the fedtrust command: cohort issuer and federated learning participant.
package main

import (
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/cmd/fedtrust/fedtrustcmd"
)

var logger = log.New("fedtrust")

func main() {
	rootCmd := &cobra.Command{
		Use: "fedtrust",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(fedtrustcmd.GetIdentityCmd())
	rootCmd.AddCommand(fedtrustcmd.GetIssuerCmd())
	rootCmd.AddCommand(fedtrustcmd.GetParticipantCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to run fedtrust", log.WithError(err))
	}
}

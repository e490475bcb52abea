package fedtrustcmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/cmd/common"
	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
)

var logger = log.New("fedtrust")

// GetIdentityCmd returns the Cobra identity command.
func GetIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage DID identities",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cmd.AddCommand(createIdentityCmd())

	return cmd
}

func createIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DID identity",
		Long:  "Create a DID identity, seal its key in a keystore file and publish its DID document",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getCreateIdentityParameters(cmd)
			if err != nil {
				return err
			}

			common.SetDefaultLogLevel(logger, parameters.logLevel)

			return createIdentity(cmd, parameters)
		},
	}

	createIdentityFlags(cmd)
	cmd.Flags().String(didMethodFlagName, "", didMethodFlagUsage)
	cmd.Flags().String(roleFlagName, "", roleFlagUsage)
	cmd.Flags().String(didDocsDirFlagName, "", didDocsDirFlagUsage)
	createLogLevelFlag(cmd)

	return cmd
}

func createIdentity(cmd *cobra.Command, parameters *createIdentityParameters) error {
	fragment := did.HolderKeyFragment
	if parameters.role == roleIssuer {
		fragment = did.IssuerKeyFragment
	}

	id, err := did.NewIdentity(parameters.method, fragment)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}

	if err = did.SaveIdentity(parameters.identity.path, id, parameters.identity.passphrase); err != nil {
		return err
	}

	if parameters.docsDir != "" {
		if err = provider.WriteDocument(parameters.docsDir, id.Document()); err != nil {
			return fmt.Errorf("publish DID document: %w", err)
		}
	}

	logger.Info("Identity created", logfields.WithDID(id.DID()))

	_, err = fmt.Fprintln(cmd.OutOrStdout(), id.DID())

	return err
}

package fedtrustcmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/authz"
	"github.com/pilacorp/go-fedtrust/cmd/common"
	"github.com/pilacorp/go-fedtrust/credential/challenge"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/metrics"
)

// nonceOpTimeout bounds each Redis nonce store operation.
const nonceOpTimeout = 3 * time.Second

// GetIssuerCmd returns the Cobra issuer command.
func GetIssuerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Run the cohort issuer",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cmd.AddCommand(createIssuerStartCmd())

	return cmd
}

func createIssuerStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the authorization server",
		Long:  "Start the authorization server issuing cohort credentials and verifying presentations",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getIssuerParameters(cmd)
			if err != nil {
				return err
			}

			common.SetDefaultLogLevel(logger, parameters.logLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return startIssuer(ctx, parameters)
		},
	}

	createIdentityFlags(cmd)
	createResolverFlags(cmd)
	cmd.Flags().String(listenAddrFlagName, "", listenAddrFlagUsage)
	cmd.Flags().String(metricsAddrFlagName, "", metricsAddrFlagUsage)
	cmd.Flags().String(maxStrikesFlagName, "", maxStrikesFlagUsage)
	cmd.Flags().String(idleTimeoutFlagName, "", idleTimeoutFlagUsage)
	cmd.Flags().String(credentialTTLFlagName, "", credentialTTLFlagUsage)
	cmd.Flags().String(credentialFormatFlagName, "", credentialFormatFlagUsage)
	cmd.Flags().String(challengeWindowFlagName, "", challengeWindowFlagUsage)
	createLogLevelFlag(cmd)

	return cmd
}

func startIssuer(ctx context.Context, parameters *issuerParameters) error {
	var c cleanups
	defer c.run()

	issuer, err := did.LoadIdentity(parameters.identity.path, parameters.identity.passphrase)
	if err != nil {
		return err
	}

	redisClient, err := createRedisClient(ctx, parameters.resolver.redisURL, &c)
	if err != nil {
		return err
	}

	format, err := parseFormat(parameters.credentialFormat)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if parameters.metricsAddr != "" {
		common.ServeMetrics(ctx, logger, parameters.metricsAddr, reg)
	}

	credentials := vc.NewEngine(vc.WithExpiry(parameters.credentialTTL), vc.WithFormat(format))

	challengeOpts := []challenge.Opt{challenge.WithWindow(parameters.challengeWindow)}
	if redisClient != nil {
		challengeOpts = append(challengeOpts, challenge.WithNonceStore(challenge.NewRedisNonceStore(redisClient, nonceOpTimeout)))
	}

	challenges := challenge.NewEngine(credentials, createResolver(parameters.resolver, redisClient), challengeOpts...)

	srv := authz.NewServer(issuer, credentials, challenges,
		authz.WithMaxStrikes(parameters.maxStrikes),
		authz.WithIdleTimeout(parameters.idleTimeout),
		authz.WithMetrics(m),
	)

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", parameters.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", parameters.listenAddr, err)
	}

	logger.Info("Starting authorization server", logfields.WithDID(issuer.DID()),
		log.WithURL("tcp://"+ln.Addr().String()))

	if err = srv.Serve(ctx, ln); err != nil {
		return err
	}

	logger.Info("Authorization server stopped", logfields.WithCount(srv.Roster().Len()))

	return nil
}

func parseFormat(format string) (vc.Format, error) {
	switch format {
	case "", vc.FormatEmbedded.String():
		return vc.FormatEmbedded, nil
	case vc.FormatJWT.String():
		return vc.FormatJWT, nil
	default:
		return 0, fmt.Errorf("unsupported credential format: %s", format)
	}
}

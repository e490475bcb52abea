package fedtrustcmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/trustbloc/logutil-go/pkg/log"

	"github.com/pilacorp/go-fedtrust/authz"
	"github.com/pilacorp/go-fedtrust/cmd/common"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/integrity"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/ledger"
	"github.com/pilacorp/go-fedtrust/metrics"
	"github.com/pilacorp/go-fedtrust/round"
)

var errUntrustedIssuer = errors.New("untrusted issuer")

// GetParticipantCmd returns the Cobra participant command.
func GetParticipantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Take part in a federated learning cohort",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cmd.AddCommand(createParticipantRunCmd())

	return cmd
}

func createParticipantRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the cohort and run training rounds",
		Long: "Obtain the cohort credential, authenticate with the issuer, then publish and verify " +
			"model contributions each round paced by the local trainer",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getParticipantParameters(cmd)
			if err != nil {
				return err
			}

			common.SetDefaultLogLevel(logger, parameters.logLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runParticipant(ctx, parameters)
		},
	}

	createIdentityFlags(cmd)
	createResolverFlags(cmd)
	cmd.Flags().String(issuerAddrFlagName, "", issuerAddrFlagUsage)
	cmd.Flags().String(issuerDIDFlagName, "", issuerDIDFlagUsage)
	cmd.Flags().String(credentialPathFlagName, "", credentialPathFlagUsage)
	cmd.Flags().String(ledgerTypeFlagName, "", ledgerTypeFlagUsage)
	cmd.Flags().String(ledgerURLFlagName, "", ledgerURLFlagUsage)
	cmd.Flags().String(ledgerTopicFlagName, "", ledgerTopicFlagUsage)
	cmd.Flags().String(tagPrefixFlagName, "", tagPrefixFlagUsage)
	cmd.Flags().String(blobStoreTypeFlagName, "", blobStoreTypeFlagUsage)
	cmd.Flags().String(blobStoreURLFlagName, "", blobStoreURLFlagUsage)
	cmd.Flags().String(s3BucketFlagName, "", s3BucketFlagUsage)
	cmd.Flags().String(s3RegionFlagName, "", s3RegionFlagUsage)
	cmd.Flags().String(s3PrefixFlagName, "", s3PrefixFlagUsage)
	cmd.Flags().String(trainerAddrFlagName, "", trainerAddrFlagUsage)
	cmd.Flags().String(modelPathFlagName, "", modelPathFlagUsage)
	cmd.Flags().String(modelsOutFlagName, "", modelsOutFlagUsage)
	cmd.Flags().String(participantsFlagName, "", participantsFlagUsage)
	cmd.Flags().String(roundsFlagName, "", roundsFlagUsage)
	cmd.Flags().String(collectTimeoutFlagName, "", collectTimeoutFlagUsage)
	cmd.Flags().String(metricsAddrFlagName, "", metricsAddrFlagUsage)
	createLogLevelFlag(cmd)

	return cmd
}

func runParticipant(ctx context.Context, parameters *participantParameters) error { //nolint:funlen
	var c cleanups
	defer c.run()

	holder, err := did.LoadIdentity(parameters.identity.path, parameters.identity.passphrase)
	if err != nil {
		return err
	}

	redisClient, err := createRedisClient(ctx, parameters.resolver.redisURL, &c)
	if err != nil {
		return err
	}

	resolver := createResolver(parameters.resolver, redisClient)

	issuerDID, rawVC, err := join(ctx, parameters, holder)
	if err != nil {
		return err
	}

	issuerDoc, err := resolver.Resolve(ctx, issuerDID)
	if err != nil {
		return err
	}

	credentials := vc.NewEngine()
	if _, err = credentials.Validate(rawVC, issuerDoc); err != nil {
		return fmt.Errorf("cohort credential rejected: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if parameters.metricsAddr != "" {
		common.ServeMetrics(ctx, logger, parameters.metricsAddr, reg)
	}

	ledgerClient, err := createLedger(ctx, parameters.ledger, &c)
	if err != nil {
		return err
	}

	blobs, err := createBlobStore(ctx, parameters.blobStore, &c)
	if err != nil {
		return err
	}

	channel := ledger.NewChannel(ledgerClient, ledger.WithMetrics(m))

	publisher := integrity.NewPublisher(holder, rawVC, blobs, channel,
		integrity.WithPublisherTagPrefix(parameters.ledger.tagPrefix))
	verifier := integrity.NewVerifier(issuerDoc, credentials, resolver, blobs, channel,
		integrity.WithTagPrefix(parameters.ledger.tagPrefix),
		integrity.WithMetrics(m),
	)

	rounds := parameters.rounds
	if rounds < 0 {
		rounds = round.DefaultRounds
	}

	conn, err := acceptTrainer(ctx, parameters.trainerAddr)
	if err != nil {
		return err
	}

	c.add(func() { _ = conn.Close() })

	trainerRounds := rounds
	if trainerRounds == 0 {
		trainerRounds = math.MaxInt
	}

	runner := round.NewRunner(
		round.NewTrainerCoordinator(conn, trainerRounds),
		publisher, verifier,
		round.FileModelSource{Path: parameters.modelPath},
		round.FileModelSink{Path: parameters.modelsOut},
		parameters.participants,
		round.WithRounds(rounds),
		round.WithCollectTimeout(parameters.collectTimeout),
	)

	return runner.Run(ctx)
}

// join obtains the cohort credential, reusing a saved one when present, and proves
// possession of it to the issuer. It returns the verifier's DID and the credential.
func join(ctx context.Context, parameters *participantParameters, holder *did.Identity) (string, []byte, error) {
	client, err := authz.Dial(ctx, parameters.issuerAddr)
	if err != nil {
		return "", nil, err
	}

	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Debug("Failed to close authorization session", log.WithError(cerr))
		}
	}()

	rawVC, err := loadCredential(parameters.credentialPath)
	if err != nil {
		return "", nil, err
	}

	if rawVC == nil {
		rawVC, err = client.RequestCredential(ctx, holder.DID())
		if err != nil {
			return "", nil, err
		}

		logger.Info("Cohort credential issued", logfields.WithHolder(holder.DID()))

		if err = saveCredential(parameters.credentialPath, rawVC); err != nil {
			return "", nil, err
		}
	}

	verifier, err := client.Authenticate(ctx, holder, rawVC)
	if err != nil {
		return "", nil, err
	}

	if parameters.issuerDID != "" && verifier != parameters.issuerDID {
		return "", nil, fmt.Errorf("%w: verifier %s is not %s", errUntrustedIssuer, verifier, parameters.issuerDID)
	}

	logger.Info("Authenticated with cohort issuer", logfields.WithDID(verifier), logfields.WithHolder(holder.DID()))

	return verifier, rawVC, nil
}

// loadCredential returns the saved credential, or nil when there is none or it has expired.
func loadCredential(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}

	cred, err := vc.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("saved credential %s: %w", path, err)
	}

	if !cred.ExpirationDate.IsZero() && !time.Now().Before(cred.ExpirationDate) {
		logger.Info("Saved credential expired, requesting a new one", log.WithPath(path))

		return nil, nil
	}

	return raw, nil
}

func saveCredential(path string, raw []byte) error {
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}

	return nil
}

// acceptTrainer waits for the local trainer to connect on addr.
func acceptTrainer(ctx context.Context, addr string) (net.Conn, error) {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	logger.Info("Waiting for trainer", log.WithURL("tcp://"+ln.Addr().String()))

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("accept trainer: %w", err)
	}

	logger.Info("Trainer connected", logfields.WithRemoteAddr(conn.RemoteAddr().String()))

	return conn, nil
}

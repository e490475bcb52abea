package fedtrustcmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	cmdutils "github.com/trustbloc/cmdutil-go/pkg/utils/cmd"

	"github.com/pilacorp/go-fedtrust/authz"
	"github.com/pilacorp/go-fedtrust/cmd/common"
)

const commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

// identity params
const (
	identityPathFlagName  = "identity-path"
	identityPathEnvKey    = "FEDTRUST_IDENTITY_PATH"
	identityPathFlagUsage = "Path of the identity keystore file. " + commonEnvVarUsageText + identityPathEnvKey

	passphraseFlagName  = "identity-passphrase"
	passphraseEnvKey    = "FEDTRUST_IDENTITY_PASSPHRASE" //nolint:gosec
	passphraseFlagUsage = "Passphrase sealing the identity key. Defaults to empty. " +
		commonEnvVarUsageText + passphraseEnvKey

	didMethodFlagName  = "did-method"
	didMethodEnvKey    = "FEDTRUST_DID_METHOD"
	didMethodFlagUsage = "DID method of a new identity. Defaults to did:fed. " + commonEnvVarUsageText + didMethodEnvKey

	roleFlagName  = "role"
	roleEnvKey    = "FEDTRUST_ROLE"
	roleFlagUsage = "Role of a new identity (issuer, participant). Defaults to participant. " +
		commonEnvVarUsageText + roleEnvKey
)

// DID resolution params
const (
	didDocsDirFlagName  = "did-docs-dir"
	didDocsDirEnvKey    = "FEDTRUST_DID_DOCS_DIR"
	didDocsDirFlagUsage = "Directory shared by the cohort where DID documents are published. " +
		commonEnvVarUsageText + didDocsDirEnvKey

	didResolverURLFlagName  = "did-resolver-url"
	didResolverURLEnvKey    = "FEDTRUST_DID_RESOLVER_URL"
	didResolverURLFlagUsage = "Universal resolver URL. Used instead of the documents directory when set. " +
		commonEnvVarUsageText + didResolverURLEnvKey

	redisURLFlagName  = "redis-url"
	redisURLEnvKey    = "FEDTRUST_REDIS_URL"
	redisURLFlagUsage = "Redis URL. When set, resolved DID documents are cached and challenge nonces are kept " +
		"in Redis. " + commonEnvVarUsageText + redisURLEnvKey

	metricsAddrFlagName  = "metrics-addr"
	metricsAddrEnvKey    = "FEDTRUST_METRICS_ADDR"
	metricsAddrFlagUsage = "Address to expose Prometheus metrics on. Disabled when empty. " +
		commonEnvVarUsageText + metricsAddrEnvKey
)

// issuer params
const (
	listenAddrFlagName  = "listen-addr"
	listenAddrEnvKey    = "FEDTRUST_LISTEN_ADDR"
	listenAddrFlagUsage = "Address the authorization server listens on. Defaults to " + defaultListenAddr + ". " +
		commonEnvVarUsageText + listenAddrEnvKey

	maxStrikesFlagName  = "max-strikes"
	maxStrikesEnvKey    = "FEDTRUST_MAX_STRIKES"
	maxStrikesFlagUsage = "Unknown commands tolerated before a session is closed. Defaults to 10. " +
		commonEnvVarUsageText + maxStrikesEnvKey

	idleTimeoutFlagName  = "idle-timeout"
	idleTimeoutEnvKey    = "FEDTRUST_IDLE_TIMEOUT"
	idleTimeoutFlagUsage = "Idle time after which a session is closed. Defaults to 2m. " +
		commonEnvVarUsageText + idleTimeoutEnvKey

	credentialTTLFlagName  = "credential-ttl"
	credentialTTLEnvKey    = "FEDTRUST_CREDENTIAL_TTL"
	credentialTTLFlagUsage = "Validity of issued credentials. Credentials never expire when empty. " +
		commonEnvVarUsageText + credentialTTLEnvKey

	credentialFormatFlagName  = "credential-format"
	credentialFormatEnvKey    = "FEDTRUST_CREDENTIAL_FORMAT"
	credentialFormatFlagUsage = "Serialization of issued credentials (embedded, jwt). Defaults to embedded. " +
		commonEnvVarUsageText + credentialFormatEnvKey

	challengeWindowFlagName  = "challenge-window"
	challengeWindowEnvKey    = "FEDTRUST_CHALLENGE_WINDOW"
	challengeWindowFlagUsage = "How long a challenge stays valid. Defaults to 10m. " +
		commonEnvVarUsageText + challengeWindowEnvKey
)

// participant params
const (
	issuerAddrFlagName  = "issuer-addr"
	issuerAddrEnvKey    = "FEDTRUST_ISSUER_ADDR"
	issuerAddrFlagUsage = "Address of the cohort authorization server. " + commonEnvVarUsageText + issuerAddrEnvKey

	issuerDIDFlagName  = "issuer-did"
	issuerDIDEnvKey    = "FEDTRUST_ISSUER_DID"
	issuerDIDFlagUsage = "Expected DID of the cohort issuer. Any verifier is trusted when empty. " +
		commonEnvVarUsageText + issuerDIDEnvKey

	credentialPathFlagName  = "credential-path"
	credentialPathEnvKey    = "FEDTRUST_CREDENTIAL_PATH"
	credentialPathFlagUsage = "File holding the cohort credential. It is requested and saved there when missing. " +
		commonEnvVarUsageText + credentialPathEnvKey

	ledgerTypeFlagName  = "ledger-type"
	ledgerTypeEnvKey    = "FEDTRUST_LEDGER_TYPE"
	ledgerTypeFlagUsage = "Ledger backend (mem, redis, kafka). Defaults to mem. " +
		commonEnvVarUsageText + ledgerTypeEnvKey

	ledgerURLFlagName  = "ledger-url"
	ledgerURLEnvKey    = "FEDTRUST_LEDGER_URL"
	ledgerURLFlagUsage = "Redis URL or comma separated Kafka seed brokers of the ledger. " +
		commonEnvVarUsageText + ledgerURLEnvKey

	ledgerTopicFlagName  = "ledger-topic"
	ledgerTopicEnvKey    = "FEDTRUST_LEDGER_TOPIC"
	ledgerTopicFlagUsage = "Kafka topic of the ledger. Defaults to fedtrust.ledger. " +
		commonEnvVarUsageText + ledgerTopicEnvKey

	tagPrefixFlagName  = "tag-prefix"
	tagPrefixEnvKey    = "FEDTRUST_TAG_PREFIX"
	tagPrefixFlagUsage = "Prefix of the per-round ledger tags. Defaults to fedtrust. " +
		commonEnvVarUsageText + tagPrefixEnvKey

	blobStoreTypeFlagName  = "blob-store-type"
	blobStoreTypeEnvKey    = "FEDTRUST_BLOB_STORE_TYPE"
	blobStoreTypeFlagUsage = "Blob store backend (mem, s3, postgres). Defaults to mem. " +
		commonEnvVarUsageText + blobStoreTypeEnvKey

	blobStoreURLFlagName  = "blob-store-url"
	blobStoreURLEnvKey    = "FEDTRUST_BLOB_STORE_URL"
	blobStoreURLFlagUsage = "Postgres connection string, or S3 endpoint override. " +
		commonEnvVarUsageText + blobStoreURLEnvKey

	s3BucketFlagName  = "s3-bucket"
	s3BucketEnvKey    = "FEDTRUST_S3_BUCKET"
	s3BucketFlagUsage = "S3 bucket holding blobs. " + commonEnvVarUsageText + s3BucketEnvKey

	s3RegionFlagName  = "s3-region"
	s3RegionEnvKey    = "FEDTRUST_S3_REGION"
	s3RegionFlagUsage = "S3 region. " + commonEnvVarUsageText + s3RegionEnvKey

	s3PrefixFlagName  = "s3-prefix"
	s3PrefixEnvKey    = "FEDTRUST_S3_PREFIX"
	s3PrefixFlagUsage = "Key prefix of blobs in the bucket. " + commonEnvVarUsageText + s3PrefixEnvKey

	trainerAddrFlagName  = "trainer-addr"
	trainerAddrEnvKey    = "FEDTRUST_TRAINER_ADDR"
	trainerAddrFlagUsage = "Address the local trainer connects to. Defaults to " + defaultTrainerAddr + ". " +
		commonEnvVarUsageText + trainerAddrEnvKey

	modelPathFlagName  = "model-path"
	modelPathEnvKey    = "FEDTRUST_MODEL_PATH"
	modelPathFlagUsage = "File the trainer writes the local model to. " + commonEnvVarUsageText + modelPathEnvKey

	modelsOutFlagName  = "models-out"
	modelsOutEnvKey    = "FEDTRUST_MODELS_OUT"
	modelsOutFlagUsage = "File the verified cohort models are written to. " + commonEnvVarUsageText + modelsOutEnvKey

	participantsFlagName  = "participants"
	participantsEnvKey    = "FEDTRUST_PARTICIPANTS"
	participantsFlagUsage = "Number of contributions expected per round. " + commonEnvVarUsageText + participantsEnvKey

	roundsFlagName  = "rounds"
	roundsEnvKey    = "FEDTRUST_ROUNDS"
	roundsFlagUsage = "Number of rounds to run. Zero runs until the trainer stops. Defaults to 10. " +
		commonEnvVarUsageText + roundsEnvKey

	collectTimeoutFlagName  = "collect-timeout"
	collectTimeoutEnvKey    = "FEDTRUST_COLLECT_TIMEOUT"
	collectTimeoutFlagUsage = "Longest wait for the cohort's contributions in one round. Unbounded when empty. " +
		commonEnvVarUsageText + collectTimeoutEnvKey
)

const (
	defaultListenAddr  = ":3333"
	defaultTrainerAddr = "127.0.0.1:5555"
	defaultRole        = "participant"
	roleIssuer         = "issuer"
)

type resolverParameters struct {
	docsDir     string
	resolverURL string
	redisURL    string
}

type identityParameters struct {
	path       string
	passphrase string
}

type createIdentityParameters struct {
	identity identityParameters
	method   string
	role     string
	docsDir  string
	logLevel string
}

type issuerParameters struct {
	identity         identityParameters
	resolver         resolverParameters
	listenAddr       string
	metricsAddr      string
	maxStrikes       int
	idleTimeout      time.Duration
	credentialTTL    time.Duration
	credentialFormat string
	challengeWindow  time.Duration
	logLevel         string
}

type participantParameters struct {
	identity       identityParameters
	resolver       resolverParameters
	issuerAddr     string
	issuerDID      string
	credentialPath string
	ledger         ledgerParameters
	blobStore      blobStoreParameters
	trainerAddr    string
	modelPath      string
	modelsOut      string
	participants   int
	rounds         int
	collectTimeout time.Duration
	metricsAddr    string
	logLevel       string
}

type ledgerParameters struct {
	ledgerType string
	url        string
	topic      string
	tagPrefix  string
}

type blobStoreParameters struct {
	storeType string
	url       string
	bucket    string
	region    string
	prefix    string
}

func getIdentityParameters(cmd *cobra.Command) (identityParameters, error) {
	path, err := cmdutils.GetUserSetVarFromString(cmd, identityPathFlagName, identityPathEnvKey, false)
	if err != nil {
		return identityParameters{}, err
	}

	passphrase, err := cmdutils.GetUserSetVarFromString(cmd, passphraseFlagName, passphraseEnvKey, true)
	if err != nil {
		return identityParameters{}, err
	}

	return identityParameters{path: path, passphrase: passphrase}, nil
}

func getResolverParameters(cmd *cobra.Command) (resolverParameters, error) {
	docsDir := cmdutils.GetUserSetOptionalVarFromString(cmd, didDocsDirFlagName, didDocsDirEnvKey)
	resolverURL := cmdutils.GetUserSetOptionalVarFromString(cmd, didResolverURLFlagName, didResolverURLEnvKey)

	if docsDir == "" && resolverURL == "" {
		return resolverParameters{}, fmt.Errorf("one of %s or %s must be set", didDocsDirFlagName, didResolverURLFlagName)
	}

	return resolverParameters{
		docsDir:     docsDir,
		resolverURL: resolverURL,
		redisURL:    cmdutils.GetUserSetOptionalVarFromString(cmd, redisURLFlagName, redisURLEnvKey),
	}, nil
}

func getCreateIdentityParameters(cmd *cobra.Command) (*createIdentityParameters, error) {
	identity, err := getIdentityParameters(cmd)
	if err != nil {
		return nil, err
	}

	role := cmdutils.GetUserSetOptionalVarFromString(cmd, roleFlagName, roleEnvKey)
	if role == "" {
		role = defaultRole
	}
	if role != defaultRole && role != roleIssuer {
		return nil, fmt.Errorf("unsupported role: %s", role)
	}

	return &createIdentityParameters{
		identity: identity,
		method:   cmdutils.GetUserSetOptionalVarFromString(cmd, didMethodFlagName, didMethodEnvKey),
		role:     role,
		docsDir:  cmdutils.GetUserSetOptionalVarFromString(cmd, didDocsDirFlagName, didDocsDirEnvKey),
		logLevel: cmdutils.GetUserSetOptionalVarFromString(cmd, common.LogLevelFlagName, common.LogLevelEnvKey),
	}, nil
}

func getIssuerParameters(cmd *cobra.Command) (*issuerParameters, error) {
	identity, err := getIdentityParameters(cmd)
	if err != nil {
		return nil, err
	}

	resolver, err := getResolverParameters(cmd)
	if err != nil {
		return nil, err
	}

	listenAddr := cmdutils.GetUserSetOptionalVarFromString(cmd, listenAddrFlagName, listenAddrEnvKey)
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	maxStrikes, err := getInt(cmd, maxStrikesFlagName, maxStrikesEnvKey, 0)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := getDuration(cmd, idleTimeoutFlagName, idleTimeoutEnvKey, authz.DefaultIdleTimeout)
	if err != nil {
		return nil, err
	}

	credentialTTL, err := getDuration(cmd, credentialTTLFlagName, credentialTTLEnvKey, 0)
	if err != nil {
		return nil, err
	}

	challengeWindow, err := getDuration(cmd, challengeWindowFlagName, challengeWindowEnvKey, 0)
	if err != nil {
		return nil, err
	}

	format := cmdutils.GetUserSetOptionalVarFromString(cmd, credentialFormatFlagName, credentialFormatEnvKey)
	if _, err = parseFormat(format); err != nil {
		return nil, err
	}

	return &issuerParameters{
		identity:         identity,
		resolver:         resolver,
		listenAddr:       listenAddr,
		metricsAddr:      cmdutils.GetUserSetOptionalVarFromString(cmd, metricsAddrFlagName, metricsAddrEnvKey),
		maxStrikes:       maxStrikes,
		idleTimeout:      idleTimeout,
		credentialTTL:    credentialTTL,
		credentialFormat: format,
		challengeWindow:  challengeWindow,
		logLevel:         cmdutils.GetUserSetOptionalVarFromString(cmd, common.LogLevelFlagName, common.LogLevelEnvKey),
	}, nil
}

func getParticipantParameters(cmd *cobra.Command) (*participantParameters, error) { //nolint:funlen
	identity, err := getIdentityParameters(cmd)
	if err != nil {
		return nil, err
	}

	resolver, err := getResolverParameters(cmd)
	if err != nil {
		return nil, err
	}

	issuerAddr, err := cmdutils.GetUserSetVarFromString(cmd, issuerAddrFlagName, issuerAddrEnvKey, false)
	if err != nil {
		return nil, err
	}

	modelPath, err := cmdutils.GetUserSetVarFromString(cmd, modelPathFlagName, modelPathEnvKey, false)
	if err != nil {
		return nil, err
	}

	modelsOut, err := cmdutils.GetUserSetVarFromString(cmd, modelsOutFlagName, modelsOutEnvKey, false)
	if err != nil {
		return nil, err
	}

	participantsStr, err := cmdutils.GetUserSetVarFromString(cmd, participantsFlagName, participantsEnvKey, false)
	if err != nil {
		return nil, err
	}

	participants, err := strconv.Atoi(participantsStr)
	if err != nil || participants < 1 {
		return nil, fmt.Errorf("invalid value [%s] for %s", participantsStr, participantsFlagName)
	}

	rounds, err := getInt(cmd, roundsFlagName, roundsEnvKey, -1)
	if err != nil {
		return nil, err
	}

	collectTimeout, err := getDuration(cmd, collectTimeoutFlagName, collectTimeoutEnvKey, 0)
	if err != nil {
		return nil, err
	}

	ledger, err := getLedgerParameters(cmd)
	if err != nil {
		return nil, err
	}

	blobStore, err := getBlobStoreParameters(cmd)
	if err != nil {
		return nil, err
	}

	trainerAddr := cmdutils.GetUserSetOptionalVarFromString(cmd, trainerAddrFlagName, trainerAddrEnvKey)
	if trainerAddr == "" {
		trainerAddr = defaultTrainerAddr
	}

	return &participantParameters{
		identity:       identity,
		resolver:       resolver,
		issuerAddr:     issuerAddr,
		issuerDID:      cmdutils.GetUserSetOptionalVarFromString(cmd, issuerDIDFlagName, issuerDIDEnvKey),
		credentialPath: cmdutils.GetUserSetOptionalVarFromString(cmd, credentialPathFlagName, credentialPathEnvKey),
		ledger:         ledger,
		blobStore:      blobStore,
		trainerAddr:    trainerAddr,
		modelPath:      modelPath,
		modelsOut:      modelsOut,
		participants:   participants,
		rounds:         rounds,
		collectTimeout: collectTimeout,
		metricsAddr:    cmdutils.GetUserSetOptionalVarFromString(cmd, metricsAddrFlagName, metricsAddrEnvKey),
		logLevel:       cmdutils.GetUserSetOptionalVarFromString(cmd, common.LogLevelFlagName, common.LogLevelEnvKey),
	}, nil
}

func getLedgerParameters(cmd *cobra.Command) (ledgerParameters, error) {
	ledgerType := cmdutils.GetUserSetOptionalVarFromString(cmd, ledgerTypeFlagName, ledgerTypeEnvKey)
	if ledgerType == "" {
		ledgerType = ledgerMem
	}

	p := ledgerParameters{
		ledgerType: ledgerType,
		url:        cmdutils.GetUserSetOptionalVarFromString(cmd, ledgerURLFlagName, ledgerURLEnvKey),
		topic:      cmdutils.GetUserSetOptionalVarFromString(cmd, ledgerTopicFlagName, ledgerTopicEnvKey),
		tagPrefix:  cmdutils.GetUserSetOptionalVarFromString(cmd, tagPrefixFlagName, tagPrefixEnvKey),
	}

	switch ledgerType {
	case ledgerMem:
	case ledgerRedis, ledgerKafka:
		if p.url == "" {
			return ledgerParameters{}, fmt.Errorf("%s is required for the %s ledger", ledgerURLFlagName, ledgerType)
		}
	default:
		return ledgerParameters{}, fmt.Errorf("unsupported ledger type: %s", ledgerType)
	}

	return p, nil
}

func getBlobStoreParameters(cmd *cobra.Command) (blobStoreParameters, error) {
	storeType := cmdutils.GetUserSetOptionalVarFromString(cmd, blobStoreTypeFlagName, blobStoreTypeEnvKey)
	if storeType == "" {
		storeType = blobStoreMem
	}

	p := blobStoreParameters{
		storeType: storeType,
		url:       cmdutils.GetUserSetOptionalVarFromString(cmd, blobStoreURLFlagName, blobStoreURLEnvKey),
		bucket:    cmdutils.GetUserSetOptionalVarFromString(cmd, s3BucketFlagName, s3BucketEnvKey),
		region:    cmdutils.GetUserSetOptionalVarFromString(cmd, s3RegionFlagName, s3RegionEnvKey),
		prefix:    cmdutils.GetUserSetOptionalVarFromString(cmd, s3PrefixFlagName, s3PrefixEnvKey),
	}

	switch storeType {
	case blobStoreMem:
	case blobStoreS3:
		if p.bucket == "" {
			return blobStoreParameters{}, fmt.Errorf("%s is required for the s3 blob store", s3BucketFlagName)
		}
	case blobStorePostgres:
		if p.url == "" {
			return blobStoreParameters{}, fmt.Errorf("%s is required for the postgres blob store", blobStoreURLFlagName)
		}
	default:
		return blobStoreParameters{}, fmt.Errorf("unsupported blob store type: %s", storeType)
	}

	return p, nil
}

func getDuration(cmd *cobra.Command, flagName, envKey string,
	defaultDuration time.Duration) (time.Duration, error) {
	timeoutStr, err := cmdutils.GetUserSetVarFromString(cmd, flagName, envKey, true)
	if err != nil {
		return -1, err
	}

	if timeoutStr == "" {
		return defaultDuration, nil
	}

	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return -1, fmt.Errorf("invalid value [%s]: %w", timeoutStr, err)
	}

	return timeout, nil
}

func getInt(cmd *cobra.Command, flagName, envKey string, defaultValue int) (int, error) {
	str, err := cmdutils.GetUserSetVarFromString(cmd, flagName, envKey, true)
	if err != nil {
		return -1, err
	}

	if str == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil || n < 0 {
		return -1, fmt.Errorf("invalid value [%s] for %s", str, flagName)
	}

	return n, nil
}

func createIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().String(identityPathFlagName, "", identityPathFlagUsage)
	cmd.Flags().String(passphraseFlagName, "", passphraseFlagUsage)
}

func createResolverFlags(cmd *cobra.Command) {
	cmd.Flags().String(didDocsDirFlagName, "", didDocsDirFlagUsage)
	cmd.Flags().String(didResolverURLFlagName, "", didResolverURLFlagUsage)
	cmd.Flags().String(redisURLFlagName, "", redisURLFlagUsage)
}

func createLogLevelFlag(cmd *cobra.Command) {
	cmd.Flags().StringP(common.LogLevelFlagName, common.LogLevelFlagShorthand, "", common.LogLevelPrefixFlagUsage)
}

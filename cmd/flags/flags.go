package flags

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/ruteri/custodial-wallet-backend/api"
	"github.com/ruteri/custodial-wallet-backend/common"
	"github.com/ruteri/custodial-wallet-backend/interfaces"
	"github.com/ruteri/custodial-wallet-backend/kms"
	"github.com/ruteri/custodial-wallet-backend/ledger"
	"github.com/ruteri/custodial-wallet-backend/storage"
	"github.com/urfave/cli/v2"
)

func envVars(name string) []string {
	return []string{"CUSTODY_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             90 * time.Second,
		ReadyTimeout:             api.DefaultReadyTimeout,
	}
}

// OpenVault builds the credential vault for the configured key service.
// With the age provider the identity is read from a file or, when a share
// threshold is set, reconstructed from Shamir shares read from stdin.
func OpenVault(cCtx *cli.Context, log *slog.Logger) (*kms.EnvelopeVault, error) {
	keyRef := cCtx.String(KMSKeyRefFlag.Name)

	var keys interfaces.KeyService
	switch provider := cCtx.String(KMSProviderFlag.Name); provider {
	case "aws":
		svc, err := kms.NewAWSKeyServiceFromConfig(cCtx.String(AWSRegionFlag.Name), cCtx.String(AWSEndpointFlag.Name))
		if err != nil {
			return nil, err
		}
		keys = svc
	case "vault":
		svc, err := kms.NewTransitKeyService(cCtx.String(VaultAddrFlag.Name), os.Getenv("VAULT_TOKEN"), cCtx.String(VaultTransitMountFlag.Name))
		if err != nil {
			return nil, err
		}
		keys = svc
	case "age":
		if threshold := cCtx.Int(AgeShareThresholdFlag.Name); threshold > 0 {
			identity, err := ReadIdentityShares(os.Stdin, threshold, log)
			if err != nil {
				return nil, err
			}
			keys = kms.NewAgeKeyService(keyRef, identity)
			break
		}
		path := cCtx.String(AgeIdentityFileFlag.Name)
		if path == "" {
			return nil, fmt.Errorf("--%s or --%s is required for the age provider", AgeIdentityFileFlag.Name, AgeShareThresholdFlag.Name)
		}
		svc, err := kms.NewAgeKeyServiceFromFile(keyRef, path)
		if err != nil {
			return nil, err
		}
		keys = svc
	default:
		return nil, fmt.Errorf("unknown kms provider %q", provider)
	}

	log.Info("Credential vault configured", "keyService", keys.Name(), "keyRef", keyRef)
	return kms.NewEnvelopeVault(keys, log), nil
}

// ReadIdentityShares reads hex encoded shares, one per line, until threshold
// of them reconstruct the age identity.
func ReadIdentityShares(r io.Reader, threshold int, log *slog.Logger) (*age.X25519Identity, error) {
	escrow := kms.NewIdentityEscrow(threshold)
	scanner := bufio.NewScanner(r)
	log.Info("Waiting for age identity shares on stdin", "threshold", threshold)
	for !escrow.IsUnlocked() && scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := escrow.SubmitShare(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shares: %w", err)
	}
	if !escrow.IsUnlocked() {
		return nil, errors.New("input ended before enough shares were provided")
	}
	return escrow.Identity()
}

// OpenRegistry opens the configured registries, replacing the key store
// when a dedicated one is configured.
func OpenRegistry(cCtx *cli.Context, factory *storage.StorageBackendFactory) (*storage.Registry, error) {
	reg, err := factory.RegistryFor(cCtx.String(RegistryURIFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	if uri := cCtx.String(KeyStoreURIFlag.Name); uri != "" {
		keys, err := factory.KeyStoreFor(uri)
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("failed to open key store: %w", err)
		}
		reg.Keys = keys
	}
	return reg, nil
}

// OpenLedger creates the operator session manager and the transaction
// orchestrator on top of it.
func OpenLedger(cCtx *cli.Context, keys interfaces.KeyStore, vault interfaces.CredentialVault, log *slog.Logger) (*ledger.SessionManager, *ledger.Orchestrator) {
	sessions := ledger.NewSessionManager(cCtx.String(NetworkFlag.Name), keys, vault, ledger.DialHedera(log), log)
	cfg := ledger.DefaultOrchestratorConfig()
	if n := cCtx.Int(LedgerMaxAttemptsFlag.Name); n > 0 {
		cfg.MaxAttempts = n
	}
	return sessions, ledger.NewOrchestrator(sessions, cfg, log)
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: envVars("log-json"),
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: envVars("log-debug"),
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:    "log-service",
	Value:   "custody",
	Usage:   "add 'service' tag to logs",
	EnvVars: envVars("log-service"),
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: envVars("listen-addr"),
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: envVars("metrics-addr"),
}
var OTLPEndpointFlag = &cli.StringFlag{
	Name:    "otlp-endpoint",
	Usage:   "OTLP/HTTP collector for traces, e.g. localhost:4318. Tracing is off when empty",
	EnvVars: envVars("otlp-endpoint"),
}
var OTLPInsecureFlag = &cli.BoolFlag{
	Name:  "otlp-insecure",
	Usage: "send traces over plain http",
}
var EnvironmentFlag = &cli.StringFlag{
	Name:    "environment",
	Usage:   "deployment environment reported with traces",
	EnvVars: envVars("environment"),
}

var NetworkFlag = &cli.StringFlag{
	Name:    "network",
	Value:   "testnet",
	Usage:   "ledger network: mainnet, testnet or previewnet",
	EnvVars: envVars("network"),
}
var LedgerMaxAttemptsFlag = &cli.IntFlag{
	Name:  "ledger-max-attempts",
	Usage: "submission attempts per transaction before giving up (0 uses the default)",
}

var RegistryURIFlag = &cli.StringFlag{
	Name:    "registry-uri",
	Value:   "bolt:///var/lib/custody/registry.db",
	Usage:   "registry location: memory://, bolt:///path or dynamodb://region/prefix",
	EnvVars: envVars("registry-uri"),
}
var KeyStoreURIFlag = &cli.StringFlag{
	Name:    "keystore-uri",
	Usage:   "dedicated key store, e.g. vault://vault:8200/secret/custody. Keys live in the registry when empty",
	EnvVars: envVars("keystore-uri"),
}
var MetadataURIsFlag = &cli.StringSliceFlag{
	Name:    "metadata-uri",
	Value:   cli.NewStringSlice("file:///var/lib/custody/metadata"),
	Usage:   "folder metadata stores: file://, s3:// or ipfs://. Repeat to replicate",
	EnvVars: envVars("metadata-uri"),
}

var KMSProviderFlag = &cli.StringFlag{
	Name:    "kms-provider",
	Value:   "age",
	Usage:   "master key service: aws, vault or age",
	EnvVars: envVars("kms-provider"),
}
var KMSKeyRefFlag = &cli.StringFlag{
	Name:    "kms-key-ref",
	Value:   "custody-wallet-keys",
	Usage:   "master key reference: KMS key id or ARN, transit key name, or age key label",
	EnvVars: envVars("kms-key-ref"),
}
var AWSRegionFlag = &cli.StringFlag{
	Name:    "aws-region",
	Value:   "us-east-1",
	Usage:   "AWS KMS region",
	EnvVars: envVars("aws-region"),
}
var AWSEndpointFlag = &cli.StringFlag{
	Name:    "aws-endpoint",
	Usage:   "custom AWS KMS endpoint",
	EnvVars: envVars("aws-endpoint"),
}
var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	Value:   "https://127.0.0.1:8200",
	Usage:   "Vault address for the transit key service. The token is read from VAULT_TOKEN",
	EnvVars: envVars("vault-addr"),
}
var VaultTransitMountFlag = &cli.StringFlag{
	Name:  "vault-transit-mount",
	Value: "transit",
	Usage: "Vault transit engine mount path",
}
var AgeIdentityFileFlag = &cli.StringFlag{
	Name:    "age-identity-file",
	Usage:   "file holding the age identity of the age provider",
	EnvVars: envVars("age-identity-file"),
}
var AgeShareThresholdFlag = &cli.IntFlag{
	Name:  "age-share-threshold",
	Usage: "reconstruct the age identity from this many Shamir shares read from stdin",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

// BackendFlags configure the registries, the credential vault and the ledger.
var BackendFlags = []cli.Flag{
	NetworkFlag,
	LedgerMaxAttemptsFlag,
	RegistryURIFlag,
	KeyStoreURIFlag,
	KMSProviderFlag,
	KMSKeyRefFlag,
	AWSRegionFlag,
	AWSEndpointFlag,
	VaultAddrFlag,
	VaultTransitMountFlag,
	AgeIdentityFileFlag,
	AgeShareThresholdFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	OTLPEndpointFlag,
	OTLPInsecureFlag,
	EnvironmentFlag,
	MetadataURIsFlag,
}

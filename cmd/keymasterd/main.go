package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-keymaster-core/cmd/flags"
	"github.com/ruteri/tee-keymaster-core/hardware"
	"github.com/ruteri/tee-keymaster-core/httpserver"
	"github.com/ruteri/tee-keymaster-core/interfaces"
	"github.com/ruteri/tee-keymaster-core/keymaster"
)

var serviceLogFlag = flags.LogServiceFlagFn("keymasterd")

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8087",
	Usage: "address to listen on for API",
}
var deviceSecretFileFlag = &cli.StringFlag{
	Name:     "device-secret-file",
	Required: true,
	Usage:    "file holding the device-unique KDF secret (32 bytes or more)",
}
var masterKeySizeFlag = &cli.IntFlag{
	Name:  "master-key-size",
	Value: keymaster.MasterKeySizeCurrent,
	Usage: "blob-wrapping key size in bytes, 16 for devices upgraded from old firmware",
}
var acceptLegacyBlobsFlag = &cli.BoolFlag{
	Name:  "accept-legacy-blobs",
	Value: true,
	Usage: "accept key blobs in the legacy envelope format",
}
var softAttestationFlag = &cli.BoolFlag{
	Name:  "soft-attestation-fallback",
	Value: false,
	Usage: "substitute test attestation material when secure storage reads fail (development only)",
}
var storageKeySupportFlag = &cli.BoolFlag{
	Name:  "storage-key-support",
	Value: false,
	Usage: "device supports hardware storage keys",
}
var fingerprintAuthFlag = &cli.BoolFlag{
	Name:  "fingerprint-auth-support",
	Value: false,
	Usage: "device has a fingerprint authenticator",
}
var debugFlag = &cli.BoolFlag{
	Name:  "debug",
	Value: false,
	Usage: "seed fake boot parameters if the bootloader never supplies any (development only)",
}

var storageBackendFlag = &cli.StringFlag{
	Name:  "storage-backend",
	Value: "none",
	Usage: "attestation material storage backend: none, file, vault or s3",
}
var storageDirFlag = &cli.StringFlag{
	Name:  "storage-dir",
	Value: "/var/lib/keymasterd",
	Usage: "base directory for the file storage backend",
}
var vaultAddrFlag = &cli.StringFlag{
	Name:  "vault-addr",
	Value: "http://127.0.0.1:8200",
	Usage: "Vault server address",
}
var vaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	EnvVars: []string{"VAULT_TOKEN"},
	Usage:   "Vault authentication token",
}
var vaultMountFlag = &cli.StringFlag{
	Name:  "vault-mount",
	Value: "secret",
	Usage: "Vault KV v2 mount path",
}
var vaultPathFlag = &cli.StringFlag{
	Name:  "vault-path",
	Value: "keymaster/attestation",
	Usage: "path under the Vault mount holding attestation material",
}
var s3BucketFlag = &cli.StringFlag{
	Name:  "s3-bucket",
	Usage: "S3 bucket holding attestation material",
}
var s3PrefixFlag = &cli.StringFlag{
	Name:  "s3-prefix",
	Value: "keymaster",
	Usage: "key prefix within the S3 bucket",
}
var s3RegionFlag = &cli.StringFlag{
	Name:  "s3-region",
	Value: "us-east-1",
	Usage: "S3 region",
}
var s3EndpointFlag = &cli.StringFlag{
	Name:  "s3-endpoint",
	Usage: "custom S3 endpoint, for MinIO or other compatible stores",
}
var s3AccessKeyFlag = &cli.StringFlag{
	Name:    "s3-access-key",
	EnvVars: []string{"AWS_ACCESS_KEY_ID"},
	Usage:   "S3 access key id",
}
var s3SecretKeyFlag = &cli.StringFlag{
	Name:    "s3-secret-key",
	EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
	Usage:   "S3 secret access key",
}

func main() {
	app := &cli.App{
		Name:  "keymasterd",
		Usage: "Serve the keymaster key-lifecycle API",
		Flags: append([]cli.Flag{
			listenAddrFlag, deviceSecretFileFlag, masterKeySizeFlag,
			acceptLegacyBlobsFlag, softAttestationFlag,
			storageKeySupportFlag, fingerprintAuthFlag, debugFlag,
			storageBackendFlag, storageDirFlag,
			vaultAddrFlag, vaultTokenFlag, vaultMountFlag, vaultPathFlag,
			s3BucketFlag, s3PrefixFlag, s3RegionFlag, s3EndpointFlag,
			s3AccessKeyFlag, s3SecretKeyFlag,
			serviceLogFlag,
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(listenAddrFlag.Name)

			logger := flags.SetupLogger(cCtx)

			deviceSecret, err := os.ReadFile(cCtx.String(deviceSecretFileFlag.Name))
			if err != nil {
				logger.Error("Failed to read device secret", "err", err)
				return err
			}

			kdf, err := hardware.NewSoftKdf(deviceSecret)
			if err != nil {
				logger.Error("Failed to initialize KDF", "err", err)
				return err
			}

			storage, err := setupStorage(cCtx, logger)
			if err != nil {
				logger.Error("Failed to initialize storage backend", "err", err)
				return err
			}

			km, err := keymaster.New(&keymaster.Config{
				Kdf:                     kdf,
				Rng:                     hardware.NewSoftRng(),
				SecureStorage:           storage,
				CertGen:                 hardware.NewSoftCertGenerator(),
				WrappedKeyParser:        &hardware.BinaryWrappedKeyParser{},
				Factories:               hardware.SoftKeyFactories(),
				MasterKeySize:           cCtx.Int(masterKeySizeFlag.Name),
				StorageKeySupport:       cCtx.Bool(storageKeySupportFlag.Name),
				FingerprintAuthSupport:  cCtx.Bool(fingerprintAuthFlag.Name),
				AcceptLegacyBlobs:       cCtx.Bool(acceptLegacyBlobsFlag.Name),
				SoftAttestationFallback: cCtx.Bool(softAttestationFlag.Name),
				Debug:                   cCtx.Bool(debugFlag.Name),
				Log:                     logger,
			})
			if err != nil {
				logger.Error("Failed to initialize keymaster context", "err", err)
				return err
			}

			km.SeedRngIfNeeded()
			logger.Info("Keymaster context initialized", "algorithms", len(km.SupportedAlgorithms()))

			srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), httpserver.NewHandler(km, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupStorage(cCtx *cli.Context, logger *slog.Logger) (interfaces.SecureStorage, error) {
	switch backend := cCtx.String(storageBackendFlag.Name); backend {
	case "none":
		return nil, nil
	case "file":
		return hardware.NewFileStorage(cCtx.String(storageDirFlag.Name), logger)
	case "vault":
		return hardware.NewVaultStorage(
			cCtx.String(vaultAddrFlag.Name),
			cCtx.String(vaultTokenFlag.Name),
			cCtx.String(vaultMountFlag.Name),
			cCtx.String(vaultPathFlag.Name),
			logger)
	case "s3":
		return hardware.NewS3Storage(
			cCtx.String(s3BucketFlag.Name),
			cCtx.String(s3PrefixFlag.Name),
			cCtx.String(s3RegionFlag.Name),
			cCtx.String(s3EndpointFlag.Name),
			cCtx.String(s3AccessKeyFlag.Name),
			cCtx.String(s3SecretKeyFlag.Name),
			logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

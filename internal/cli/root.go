package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/acredita/respaldo/internal/adapter/archive"
	"github.com/acredita/respaldo/internal/adapter/dump"
	"github.com/acredita/respaldo/internal/core/repository"
	"github.com/acredita/respaldo/internal/core/service"
	"github.com/acredita/respaldo/internal/infrastructure/sqlite"
	"github.com/acredita/respaldo/internal/storage"
	"github.com/acredita/respaldo/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "respaldo",
	Short: "Respaldo - Database backup orchestration",
	Long: `Respaldo creates, stores and serves database backup archives.

It provides:
- Logical database dumps compressed into zip archives
- Local disk and S3-compatible remote storage
- Retention-based cleanup
- Authenticated downloads with short-lived capability URLs
- REST API for remote management`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/respaldo/config.yml)")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevMode() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// initServices initializes all services
func initServices() (*Services, error) {
	logger := newLogger()

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	userRepo := sqlite.NewUserRepository(db)
	authCodeRepo := sqlite.NewAuthCodeRepository(db)
	backupRepo := sqlite.NewBackupRepository(db)
	grantRepo := sqlite.NewDownloadGrantRepository(db)

	// Initialize storage backends. The remote backend is only wired when a
	// bucket is configured; requests for the remote disk fail otherwise.
	local := storage.NewLocalDisk(cfg.BackupDir)
	var remote storage.Backend
	if cfg.S3.Bucket != "" {
		remote = storage.NewObjectStore(storage.ObjectStoreConfig{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		}, logger)
	}
	disks := storage.NewResolver(local, remote)

	// Initialize adapters
	dumper := dump.NewMySQLExecutor(
		cfg.Database.DumpBinary,
		time.Duration(cfg.Database.DumpTimeoutSeconds)*time.Second,
		logger,
	)
	archiver := archive.NewZipArchiver()

	conn := dump.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, authCodeRepo, grantRepo, cfg.JWTSecretKey, cfg.JWTAlgorithm)
	uploadTimeout := time.Duration(cfg.S3.UploadTimeoutSeconds) * time.Second
	backupService := service.NewBackupService(backupRepo, disks, local, dumper, archiver, conn, cfg.StagingDir, uploadTimeout, logger)
	cleanupService := service.NewCleanupService(backupRepo, disks, logger)

	return &Services{
		DB:             db,
		Logger:         logger,
		UserRepo:       userRepo,
		BackupRepo:     backupRepo,
		AuthService:    authService,
		BackupService:  backupService,
		CleanupService: cleanupService,
	}, nil
}

// Services holds all initialized services
type Services struct {
	DB             *sqlite.DB
	Logger         zerolog.Logger
	UserRepo       repository.UserRepository
	BackupRepo     repository.BackupRepository
	AuthService    *service.AuthService
	BackupService  *service.BackupService
	CleanupService *service.CleanupService
}

// Close closes all resources
func (s *Services) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
}

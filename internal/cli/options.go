package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/blockprop/config"
	"github.com/malbeclabs/blockprop/internal/assembler"
	"github.com/malbeclabs/blockprop/internal/parquet"
	"github.com/malbeclabs/blockprop/internal/partition"
	"github.com/malbeclabs/blockprop/internal/prep"
	"github.com/malbeclabs/blockprop/internal/provider"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options are resolved from, lowest precedence first: built-in defaults, environment,
// the config file and flags.
type options struct {
	Verbose      bool
	JSON         bool
	ForceRefresh bool

	Network  string
	BaseURL  string
	Database string
	Table    string
	CacheDir string

	Concurrency     int
	RequestTimeout  time.Duration
	MaxRetries      int
	RefreshTime     time.Duration
	MemoryMaxRows   int64
	SlowThresholdMs float64
}

func loadOptions(cmd *cobra.Command) (*options, error) {
	flags := cmd.Root().PersistentFlags()

	opts := &options{CacheDir: config.CacheDir()}
	var err error
	if opts.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	if opts.JSON, err = flags.GetBool("json"); err != nil {
		return nil, fmt.Errorf("failed to get json flag: %w", err)
	}
	if opts.ForceRefresh, err = flags.GetBool("force-refresh"); err != nil {
		return nil, fmt.Errorf("failed to get force-refresh flag: %w", err)
	}

	file := &config.File{}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath != "" {
		if file, err = config.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	network, err := stringFlag(flags, "network", file.Network)
	if err != nil {
		return nil, err
	}
	if network == "" {
		network = config.SupportedNetworks[0]
	}
	networkConfig, err := config.NetworkConfigFor(network)
	if err != nil {
		return nil, err
	}
	opts.Network = networkConfig.Network
	opts.BaseURL = networkConfig.BaseURL
	opts.Database = networkConfig.Database
	opts.Table = networkConfig.Table

	if file.BaseURL != "" {
		opts.BaseURL = file.BaseURL
	}
	if file.Database != "" {
		opts.Database = file.Database
	}
	if file.Table != "" {
		opts.Table = file.Table
	}
	if file.CacheDir != "" {
		opts.CacheDir = file.CacheDir
	}
	opts.Concurrency = file.Concurrency
	opts.RequestTimeout = file.RequestTimeout
	opts.MaxRetries = int(file.MaxRetries)
	opts.RefreshTime = file.RefreshTime
	opts.MemoryMaxRows = file.MemoryMaxRows
	opts.SlowThresholdMs = file.SlowThresholdMs

	if opts.BaseURL, err = stringFlag(flags, "base-url", opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Database, err = stringFlag(flags, "database", opts.Database); err != nil {
		return nil, err
	}
	if opts.CacheDir, err = stringFlag(flags, "cache-dir", opts.CacheDir); err != nil {
		return nil, err
	}
	if flags.Changed("concurrency") {
		if opts.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, fmt.Errorf("failed to get concurrency flag: %w", err)
		}
		if opts.Concurrency < 0 {
			return nil, errors.New("concurrency must be >= 0")
		}
	}

	return opts, nil
}

// stringFlag returns the flag value when it was set explicitly, otherwise fallback.
func stringFlag(flags *pflag.FlagSet, name, fallback string) (string, error) {
	if !flags.Changed(name) {
		return fallback, nil
	}
	v, err := flags.GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	return v, nil
}

// stack is the wired pipeline: source, fetcher, assembler, normalizer and provider.
type stack struct {
	codec     *parquet.Codec
	fetcher   *partition.Fetcher
	assembler *assembler.Assembler
	provider  *provider.Provider
}

func newStack(ctx context.Context, log *slog.Logger, opts *options) (_ *stack, err error) {
	s := &stack{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.codec, err = parquet.NewCodec(log); err != nil {
		return nil, fmt.Errorf("failed to create parquet codec: %w", err)
	}

	source, err := newSource(ctx, log, opts)
	if err != nil {
		return nil, err
	}

	s.fetcher, err = partition.NewFetcher(partition.FetcherConfig{
		Logger:        log,
		Source:        source,
		Decoder:       s.codec,
		CacheDir:      opts.CacheDir,
		MemoryMaxRows: opts.MemoryMaxRows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	s.assembler, err = assembler.New(assembler.Config{
		Logger:      log,
		Fetcher:     s.fetcher,
		Concurrency: opts.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assembler: %w", err)
	}

	normalizer, err := prep.NewNormalizer(prep.Config{
		Logger:               log,
		FixedSlowThresholdMs: opts.SlowThresholdMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer: %w", err)
	}

	s.provider, err = provider.New(provider.Config{
		Logger:      log,
		Fetcher:     s.fetcher,
		Assembler:   s.assembler,
		Normalizer:  normalizer,
		Table:       opts.Table,
		RefreshTime: opts.RefreshTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return s, nil
}

func newSource(ctx context.Context, log *slog.Logger, opts *options) (partition.Source, error) {
	if partition.IsS3URL(opts.BaseURL) {
		source, err := partition.NewS3Source(ctx, partition.S3Config{
			Logger:   log,
			Database: opts.Database,
			BaseURL:  opts.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 source: %w", err)
		}
		return source, nil
	}
	source, err := partition.NewHTTPSource(partition.HTTPConfig{
		Logger:         log,
		BaseURL:        opts.BaseURL,
		Database:       opts.Database,
		RequestTimeout: opts.RequestTimeout,
		MaxRetries:     opts.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create http source: %w", err)
	}
	return source, nil
}

func (s *stack) Close() {
	if s.provider != nil {
		s.provider.Close()
	}
	if s.assembler != nil {
		s.assembler.Close()
	}
	if s.fetcher != nil {
		s.fetcher.Close()
	}
	if s.codec != nil {
		_ = s.codec.Close()
	}
}

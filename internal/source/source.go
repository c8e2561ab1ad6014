// Package source selects the remote source driver for a configured endpoint.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/labimport/internal/config"
	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/source/fs"
	"github.com/JonMunkholm/labimport/internal/source/s3"
	"github.com/JonMunkholm/labimport/internal/source/sftp"
)

// Opener returns a function that connects to the endpoint described by cfg.
// Nothing is dialed until the returned opener is called at the start of a run.
func Opener(cfg config.SourceConfig) (core.SourceOpener, error) {
	switch core.Driver(strings.ToLower(cfg.Driver)) {
	case core.DriverSFTP:
		sc := sftp.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Username:   cfg.Username,
			Password:   cfg.Password,
			Directory:  cfg.Directory,
			KnownHosts: cfg.KnownHosts,
		}
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("sftp source: %w", err)
		}
		return func(ctx context.Context) (core.Source, error) {
			return sftp.Dial(ctx, sc)
		}, nil

	case core.DriverS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 source: bucket is required")
		}
		sc := s3.Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Directory,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.Username,
			SecretAccessKey: cfg.Password,
			PathStyle:       cfg.Endpoint != "",
		}
		return func(ctx context.Context) (core.Source, error) {
			return s3.Open(ctx, sc)
		}, nil

	case core.DriverFS:
		dir := cfg.Directory
		return func(context.Context) (core.Source, error) {
			return fs.New(dir)
		}, nil
	}
	return nil, fmt.Errorf("unknown source driver %q", cfg.Driver)
}

/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Wed Mar 27 12:01:40 2019 mstenber
 * Last modified: Wed Mar 27 13:15:02 2019 mstenber
 * Edit time:     18 min
 *
 */

package main

import (
	"fmt"

	"github.com/fingon/go-logtrie/mlog"
	"github.com/fingon/go-logtrie/storage/factory"
	"github.com/fingon/go-logtrie/store"
	"github.com/urfave/cli"
)

var (
	dirFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "Directory of the store",
		Value: ".",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: fmt.Sprintf("Backend to use (possible: %v)", factory.List()),
		Value: store.DefaultBackend,
	}
	passwordFlag = cli.StringFlag{
		Name:   "password",
		Usage:  "Encrypt the log with the given password",
		EnvVar: "LOGTRIE_PASSWORD",
	}
	compressionFlag = cli.StringFlag{
		Name:  "compression",
		Usage: "Compression to use (none, lz4, snappy, zstd)",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "JSON configuration file; the other flags override it",
	}
	fileSizeFlag = cli.Uint64Flag{
		Name:  "filesize",
		Usage: "Size of a single log file",
	}
	mlogFlag = cli.StringFlag{
		Name:  "mlog",
		Usage: "Enable logging based on the given file regular expression",
	}
	dupsFlag = cli.BoolFlag{
		Name:  "dups",
		Usage: "Store allows multiple values per key",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "Also show the structure of the stores",
	}
)

var globalFlags = []cli.Flag{dirFlag, backendFlag, passwordFlag,
	compressionFlag, configFlag, fileSizeFlag, mlogFlag}

// loadConfig produces the store configuration from the config file
// (if any) and the flags.
func loadConfig(ctx *cli.Context) (*store.Config, error) {
	if p := ctx.GlobalString(mlogFlag.Name); p != "" {
		mlog.SetPattern(p)
	}
	config := &store.Config{Directory: ctx.GlobalString(dirFlag.Name),
		Backend: ctx.GlobalString(backendFlag.Name)}
	if path := ctx.GlobalString(configFlag.Name); path != "" {
		var err error
		config, err = store.LoadConfig(path, *config)
		if err != nil {
			return nil, err
		}
		if ctx.GlobalIsSet(dirFlag.Name) {
			config.Directory = ctx.GlobalString(dirFlag.Name)
		}
		if ctx.GlobalIsSet(backendFlag.Name) {
			config.Backend = ctx.GlobalString(backendFlag.Name)
		}
	}
	if p := ctx.GlobalString(passwordFlag.Name); p != "" {
		config.Codec.Password = p
	}
	if c := ctx.GlobalString(compressionFlag.Name); c != "" {
		config.Codec.Compression = c
	}
	if fs := ctx.GlobalUint64(fileSizeFlag.Name); fs != 0 {
		config.FileSize = fs
	}
	return config, nil
}

// genmasterkey writes the device key that seals the stored service
// credential. It refuses to overwrite an existing key: the settings
// file sealed with the old key would become unreadable.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/files"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var keyFile string
	flagSet := pflag.NewFlagSet("genmasterkey", pflag.ContinueOnError)
	flagSet.StringVarP(&keyFile, "out", "o", config.Default().Storage.KeyFile, "key file, relative to the data directory")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	path := utils.DataPath(keyFile)
	if _, err := files.WriteMasterKey(path); err != nil {
		if errors.Is(err, files.ErrKeyExists) {
			return fmt.Errorf("%s already exists. Refusing to overwrite", path)
		}
		return err
	}
	fmt.Printf("Master key written to %s\n", path)
	return nil
}

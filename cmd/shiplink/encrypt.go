package main

import (
	"fmt"
	"os"

	"shiplink/internal/domain"
	"shiplink/internal/infra/config"
)

// runEncrypt prints VALUE as an enc: string for use in the config file.
func runEncrypt(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: shiplink encrypt VALUE", errUsage)
	}
	passphrase := os.Getenv("SHIPLINK_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("%w: SHIPLINK_CONFIG_KEY is not set", domain.ErrConfigLoad)
	}
	enc, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}

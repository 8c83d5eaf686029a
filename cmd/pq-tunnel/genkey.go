// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/pqtunnel/suite"
)

func genkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a long-term ML-DSA signing keypair for out-of-band provisioning",
		Long: `Generates the GCS's long-term signature keypair used to authenticate
the ServerHello (spec.md §4.2). The signing key stays on the GCS; the
verifying key is copied to every drone out of band.`,
		RunE: runGenkey,
	}
	cmd.Flags().String("suite", defaultSuiteID, "cryptographic suite identifier, selects the signature algorithm")
	cmd.Flags().String("out-prefix", "pq-tunnel", "output files are written to <prefix>.sign.key and <prefix>.verify.key")
	return cmd
}

func runGenkey(cmd *cobra.Command, args []string) error {
	suiteID, err := cmd.Flags().GetString("suite")
	if err != nil {
		return err
	}
	prefix, err := cmd.Flags().GetString("out-prefix")
	if err != nil {
		return err
	}

	s, err := suite.Get(suiteID)
	if err != nil {
		return err
	}
	sig, err := s.Signer()
	if err != nil {
		return fmt.Errorf("pq-tunnel: %w", err)
	}

	pub, priv, err := sig.Generate()
	if err != nil {
		return fmt.Errorf("pq-tunnel: generate signing keypair: %w", err)
	}

	signPath := prefix + ".sign.key"
	verifyPath := prefix + ".verify.key"
	if err := os.WriteFile(signPath, priv, 0o600); err != nil {
		return fmt.Errorf("pq-tunnel: write signing key: %w", err)
	}
	if err := os.WriteFile(verifyPath, pub, 0o644); err != nil {
		return fmt.Errorf("pq-tunnel: write verifying key: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (keep secret, GCS only) and %s (distribute to drones)\n", signPath, verifyPath)
	return nil
}

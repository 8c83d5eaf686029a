// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pq-tunnel",
	Short: "Post-quantum authenticated UDP tunnel between a drone and its ground control station",
	Long: `pq-tunnel runs one side of a bidirectional, post-quantum authenticated
UDP tunnel. A TCP handshake bootstraps a shared session under an
ML-KEM/ML-DSA suite, after which plaintext UDP traffic on a loopback
port is transparently encrypted and forwarded to the peer's matching
port, and back.`,
}

func main() {
	rootCmd.AddCommand(
		gcsCmd(),
		droneCmd(),
		genkeyCmd(),
		statusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

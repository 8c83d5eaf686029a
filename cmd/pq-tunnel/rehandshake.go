// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"net"

	"github.com/luxfi/pqtunnel/handshake"
	"github.com/luxfi/pqtunnel/proxy"
	"github.com/luxfi/pqtunnel/session"
	"github.com/luxfi/pqtunnel/suite"
)

// gcsRehandshaker re-runs the server side of the handshake over the
// still-open TCP connection established at startup, for the rekey
// mechanics of spec.md §4.4 step 3 ("open a fresh handshake").
type gcsRehandshaker struct {
	conn         net.Conn
	psk          [32]byte
	signingKey   []byte
	replayWindow uint64
}

func (g *gcsRehandshaker) Rehandshake(suiteID string, epoch byte) (session.Context, error) {
	s, err := suite.Get(suiteID)
	if err != nil {
		return session.Context{}, err
	}
	srv := handshake.NewServer(handshake.ServerConfig{Suite: s, PSK: g.psk, SigningKey: g.signingKey})
	result, err := srv.Run(g.conn)
	if err != nil {
		return session.Context{}, fmt.Errorf("pq-tunnel: rekey handshake: %w", err)
	}
	result.Epoch = epoch
	ctx, err := proxy.NewContextFromHandshake(result, g.replayWindow)
	if err != nil {
		return session.Context{}, err
	}
	return *ctx, nil
}

// droneRehandshaker is the client-side counterpart of gcsRehandshaker.
type droneRehandshaker struct {
	conn         net.Conn
	psk          [32]byte
	verifyKey    []byte
	replayWindow uint64
}

func (d *droneRehandshaker) Rehandshake(suiteID string, epoch byte) (session.Context, error) {
	s, err := suite.Get(suiteID)
	if err != nil {
		return session.Context{}, err
	}
	cli := handshake.NewClient(handshake.ClientConfig{Suite: s, PSK: d.psk, VerifyKey: d.verifyKey})
	result, err := cli.Run(d.conn)
	if err != nil {
		return session.Context{}, fmt.Errorf("pq-tunnel: rekey handshake: %w", err)
	}
	result.Epoch = epoch
	ctx, err := proxy.NewContextFromHandshake(result, d.replayWindow)
	if err != nil {
		return session.Context{}, err
	}
	return *ctx, nil
}

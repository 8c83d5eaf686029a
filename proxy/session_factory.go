// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"fmt"

	"github.com/luxfi/pqtunnel/framing"
	"github.com/luxfi/pqtunnel/handshake"
	"github.com/luxfi/pqtunnel/session"
)

// NewContextFromHandshake builds the Sender/Receiver pair for a
// freshly completed handshake.Result and wraps them in a
// session.Context, ready to seed a session.Manager or to be handed
// to Manager.Swap after a rekey.
func NewContextFromHandshake(result handshake.Result, replayWindow uint64) (*session.Context, error) {
	kemID, kemParamID, sigID, sigParamID := result.Suite.HeaderIDs()

	snd, err := framing.NewSender(result.SendKey, result.SessionID, kemID, kemParamID, sigID, sigParamID, result.Epoch)
	if err != nil {
		return nil, fmt.Errorf("proxy: build sender: %w", err)
	}
	rcv, err := framing.NewReceiver(result.RecvKey, result.SessionID, kemID, kemParamID, sigID, sigParamID, result.Epoch, replayWindow)
	if err != nil {
		return nil, fmt.Errorf("proxy: build receiver: %w", err)
	}

	return &session.Context{
		SessionID: result.SessionID,
		Suite:     result.Suite,
		Epoch:     result.Epoch,
		Sender:    snd,
		Receiver:  rcv,
	}, nil
}

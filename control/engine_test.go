// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0)

func TestTwoPhaseCommitHappyPath(t *testing.T) {
	gcs := NewEngine(RoleGCS, Config{KnownSuites: []string{"cs-mlkem768-aesgcm-mldsa65"}})
	drone := NewEngine(RoleDrone, Config{KnownSuites: []string{"cs-mlkem768-aesgcm-mldsa65"}})

	prepare, err := gcs.InitiateRekey("cs-mlkem768-aesgcm-mldsa65", now)
	require.NoError(t, err)
	require.Equal(t, NEGOTIATING, gcs.State())

	reply, err := drone.HandlePrepareRekey(RoleGCS, prepare, now)
	require.NoError(t, err)
	commit, ok := reply.(*CommitRekey)
	require.True(t, ok)
	require.Equal(t, SWAPPING, drone.State())

	err = gcs.HandleCommitRekey(commit, now)
	require.NoError(t, err)
	require.Equal(t, SWAPPING, gcs.State())

	gcsComplete := gcs.MarkComplete(true, now)
	require.EqualValues(t, 0, gcsComplete.Status)
	require.Equal(t, RUNNING, gcs.State())

	droneComplete := drone.MarkComplete(true, now)
	require.EqualValues(t, 0, droneComplete.Status)
	require.Equal(t, RUNNING, drone.State())
}

func TestDroneCannotInitiateRekey(t *testing.T) {
	drone := NewEngine(RoleDrone, Config{})
	_, err := drone.InitiateRekey("cs-mlkem768-aesgcm-mldsa65", now)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPrepareRekeyFromDroneIsRejected(t *testing.T) {
	gcs := NewEngine(RoleGCS, Config{KnownSuites: []string{"cs-mlkem768-aesgcm-mldsa65"}})

	forged := &PrepareRekey{TargetSuite: "cs-mlkem768-aesgcm-mldsa65"}
	reply, err := gcs.HandlePrepareRekey(RoleDrone, forged, now)
	require.ErrorIs(t, err, ErrUnauthorized)
	fail, ok := reply.(*PrepareFail)
	require.True(t, ok)
	require.Equal(t, "unauthorized", fail.Reason)
	require.Equal(t, RUNNING, gcs.State())
}

func TestUnknownSuiteRejected(t *testing.T) {
	drone := NewEngine(RoleDrone, Config{KnownSuites: []string{"cs-mlkem768-aesgcm-mldsa65"}})
	reply, err := drone.HandlePrepareRekey(RoleGCS, &PrepareRekey{TargetSuite: "cs-bogus"}, now)
	require.ErrorIs(t, err, ErrUnknownSuite)
	fail := reply.(*PrepareFail)
	require.Equal(t, "unknown_suite", fail.Reason)
}

func TestCommitNonceMismatchRejected(t *testing.T) {
	gcs := NewEngine(RoleGCS, Config{KnownSuites: []string{"s"}})
	_, err := gcs.InitiateRekey("s", now)
	require.NoError(t, err)

	bogus := &CommitRekey{TargetSuite: "s"}
	err = gcs.HandleCommitRekey(bogus, now)
	require.ErrorIs(t, err, ErrNonceMismatch)
}

func TestPrepareTimeoutReturnsToRunning(t *testing.T) {
	gcs := NewEngine(RoleGCS, Config{PrepareTimeout: time.Second, KnownSuites: []string{"s"}})
	_, err := gcs.InitiateRekey("s", now)
	require.NoError(t, err)

	err = gcs.ExpirePrepareIfDue(now.Add(2 * time.Second))
	require.ErrorIs(t, err, ErrPrepareTimeout)
	require.Equal(t, RUNNING, gcs.State())
}

func TestSwapTimeoutFails(t *testing.T) {
	drone := NewEngine(RoleDrone, Config{SwapTimeout: time.Second, KnownSuites: []string{"s"}})
	_, err := drone.HandlePrepareRekey(RoleGCS, &PrepareRekey{TargetSuite: "s"}, now)
	require.NoError(t, err)
	require.Equal(t, SWAPPING, drone.State())

	err = drone.ExpireSwapIfDue(now.Add(2 * time.Second))
	require.ErrorIs(t, err, ErrSwapTimeout)
	require.Equal(t, FAILED, drone.State())
}

func TestRollbackAllowedOnceAfterFailure(t *testing.T) {
	gcs := NewEngine(RoleGCS, Config{KnownSuites: []string{"a", "b"}})
	_, err := gcs.InitiateRekey("b", now)
	require.NoError(t, err)
	gcs.MarkComplete(false, now)
	require.Equal(t, FAILED, gcs.State())

	_, err = gcs.AttemptRollback("a", now)
	require.NoError(t, err)
	require.Equal(t, NEGOTIATING, gcs.State())

	gcs.MarkComplete(false, now)
	_, err = gcs.AttemptRollback("a", now)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	p := &PrepareRekey{TargetSuite: "cs-mlkem768-aesgcm-mldsa65", Nonce: [8]byte{1, 2, 3}, Ts: now.Unix(), Extra: []byte("opaque")}
	buf, err := p.Encode()
	require.NoError(t, err)
	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, p, decoded)

	c := &CommitRekey{TargetSuite: "x", NonceEcho: [8]byte{9}, Ts: now.Unix()}
	buf, err = c.Encode()
	require.NoError(t, err)
	decoded, err = Decode(buf)
	require.NoError(t, err)
	require.Equal(t, c, decoded)

	f := &PrepareFail{Reason: "unauthorized", Ts: now.Unix()}
	buf, err = f.Encode()
	require.NoError(t, err)
	decoded, err = Decode(buf)
	require.NoError(t, err)
	require.Equal(t, f, decoded)

	rc := &RekeyComplete{Status: 1, Ts: now.Unix()}
	buf, err = rc.Encode()
	require.NoError(t, err)
	decoded, err = Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rc, decoded)
}

func TestEveryMessageCarriesTheFullRecord(t *testing.T) {
	// All four types share the one { type, target_suite, nonce, ts,
	// extra } wire schema: fields a type gives no meaning to are still
	// present (empty) on the wire, so every encoded body has the same
	// fixed-field layout.
	f := &PrepareFail{Reason: "busy", Ts: 42}
	buf, err := f.Encode()
	require.NoError(t, err)
	// type(1) + suite len(2) + nonce(8) + ts(8) + extra len(2) + "busy"
	require.Len(t, buf, 1+2+8+8+2+4)

	rc := &RekeyComplete{Status: 0, Ts: 42}
	buf, err = rc.Encode()
	require.NoError(t, err)
	require.Len(t, buf, 1+2+8+8+2+1)
}

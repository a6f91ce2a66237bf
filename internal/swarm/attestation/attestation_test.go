package attestation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-swarm/swarmkit/internal/swarm/swarmtypes"
)

func testOutput() swarmtypes.AgentOutput {
	goal := swarmtypes.NewGoal("sign this output")
	id := swarmtypes.DeriveAgentID(goal.Hash, swarmtypes.CapabilityCodeGen, 0)
	return swarmtypes.AgentOutput{AgentID: id, TaskID: "t1", Content: "package main\n"}
}

func TestSignAndVerifyRoundTrips(t *testing.T) {
	signer := NewSigner([]byte("shared-secret"), time.Hour)
	out := testOutput()

	token, err := signer.Sign(out)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := signer.Verify(token, out)
	require.NoError(t, err)
	assert.Equal(t, out.TaskID, claims.TaskID)
	assert.Equal(t, out.AgentID.String(), claims.AgentID)
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	signer := NewSigner([]byte("shared-secret"), time.Hour)
	out := testOutput()

	token, err := signer.Sign(out)
	require.NoError(t, err)

	tampered := out
	tampered.Content = "package main\n// injected\n"
	_, err = signer.Verify(token, tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	out := testOutput()
	token, err := NewSigner([]byte("secret-a"), time.Hour).Sign(out)
	require.NoError(t, err)

	_, err = NewSigner([]byte("secret-b"), time.Hour).Verify(token, out)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	signer := NewSigner([]byte("shared-secret"), time.Millisecond)
	out := testOutput()

	token, err := signer.Sign(out)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = signer.Verify(token, out)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

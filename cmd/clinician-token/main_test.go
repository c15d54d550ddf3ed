package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/voice-intake/internal/auth"
)

func TestRun_MintsVerifiableToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-id", "dr-42", "-ttl", "1h"}, "s3cret", &out))

	id, err := auth.ParseJWT(strings.TrimSpace(out.String()), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "dr-42", id)

	_, err = auth.ParseJWT(strings.TrimSpace(out.String()), "other")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRun_RejectsBadArgs(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(nil, "s", &out))
	assert.Error(t, run([]string{"-id", "dr", "-ttl", "-1h"}, "s", &out))
	assert.Error(t, run([]string{"-nope"}, "s", &out))
	assert.Empty(t, out.String())
}

package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piggyclaim/piggyclaim/pkg/proxy"
)

func TestNewWallet(t *testing.T) {
	p := proxy.MustParse("1.2.3.4:8080")
	w, err := NewWallet("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", p)
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), w.Address)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.String())
	assert.Same(t, p, w.Proxy)

	_, err = NewWallet("garbage", nil)
	assert.Error(t, err)
}

func TestParseTaskName(t *testing.T) {
	name, err := ParseTaskName(" claim ")
	require.NoError(t, err)
	assert.Equal(t, TaskClaim, name)

	_, err = ParseTaskName("BRIDGE")
	assert.Error(t, err)
}

func TestRouteTaskNames(t *testing.T) {
	r := &Route{Tasks: []TaskName{TaskClaim, TaskCheckTokens}}
	assert.Equal(t, []string{"CLAIM", "CHECK_TOKENS"}, r.TaskNames())
}

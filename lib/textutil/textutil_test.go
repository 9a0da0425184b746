package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSquash(t *testing.T) {
	require.Equal(t, "claimallcash&coins", Squash("  Claim All\n Cash &\tCoins "))
	require.Empty(t, Squash(" \n "))
}

func TestContainsAnyFold(t *testing.T) {
	require.True(t, ContainsAnyFold("  Claim  All\nCash ", "claim all"))
	require.True(t, ContainsAnyFold("2,500 COINS", "cash", "coin"))
	require.True(t, ContainsAnyFold("$10", "usd", "$"))
	require.False(t, ContainsAnyFold("Claim Prize", "claim all"))
	require.False(t, ContainsAnyFold("anything"))
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "Free Entry", CollapseSpace("\n  Free \t  Entry \n"))
}

func TestGroupSimilar(t *testing.T) {
	groups := GroupSimilar([]string{
		"Tournament Full",
		"Game account required",
		"tournament  full",
		"Tournament full!",
	}, 0.9)
	require.Equal(t, []Group{
		{Label: "Tournament Full", Count: 3},
		{Label: "Game account required", Count: 1},
	}, groups)

	require.Empty(t, GroupSimilar(nil, 0.9))
}

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	key := Key(KindCurrent, "Delhi")
	require.Equal(t, "current:Delhi", key)
	require.Equal(t, KindCurrent, KindOf(key))
	require.Equal(t, "Delhi", Qualifier(key))
}

func TestKindOfWithoutSeparator(t *testing.T) {
	require.Equal(t, Kind(""), KindOf("nokind"))
	require.Equal(t, "", Qualifier("nokind"))
}

func TestMatchKeyPrefix(t *testing.T) {
	require.True(t, MatchKey("current:", "current:Delhi"))
	require.True(t, MatchKey("current:Delhi", "current:Delhi"))
	require.False(t, MatchKey("forecast24h:", "current:Delhi"))
}

func TestMatchKeyGlob(t *testing.T) {
	require.True(t, MatchKey("current:*", "current:Delhi"))
	require.True(t, MatchKey("*:Delhi", "forecast24h:Delhi"))
	require.False(t, MatchKey("current:*", "forecast24h:Delhi"))
}

package inspectlink_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cs2-inspect-gateway/pkg/inspectlink"
)

func TestParse_InventoryLink(t *testing.T) {
	l, err := inspectlink.Parse("steam://rungame/730/76561202255233023/+csgo_econ_action_preview S76561198084749846A38350177313D4631504735516729775")
	require.NoError(t, err)
	assert.Equal(t, uint64(76561198084749846), l.S)
	assert.Equal(t, uint64(38350177313), l.A)
	assert.Equal(t, uint64(4631504735516729775), l.D)
	assert.Zero(t, l.M)
}

func TestParse_MarketLink(t *testing.T) {
	l, err := inspectlink.Parse("steam://rungame/730/76561202255233023/+csgo_econ_action_preview M625254122282020305A6760346663D30614827701953021")
	require.NoError(t, err)
	assert.Equal(t, uint64(625254122282020305), l.M)
	assert.Equal(t, uint64(6760346663), l.A)
	assert.Zero(t, l.S)
}

func TestParse_PercentEncoded(t *testing.T) {
	l, err := inspectlink.Parse("steam://rungame/730/76561202255233023/+csgo_econ_action_preview%20S76561198084749846A38350177313D4631504735516729775")
	require.NoError(t, err)
	assert.Equal(t, uint64(38350177313), l.A)
}

func TestParse_Malformed(t *testing.T) {
	cases := []string{
		"",
		"https://example.com",
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview",
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview S1A2",
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview A2D3",
		"steam://rungame/730/76561202255233023/+csgo_econ_action_preview SXA2D3",
	}
	for _, raw := range cases {
		_, err := inspectlink.Parse(raw)
		assert.ErrorIs(t, err, inspectlink.ErrMalformed, raw)
	}
}

func TestParsePayload_RejectsBothOwnerAndMarket(t *testing.T) {
	_, err := inspectlink.ParsePayload("S0A2D3")
	assert.ErrorIs(t, err, inspectlink.ErrMalformed)
}

func TestFormat_RoundTrip(t *testing.T) {
	for _, l := range []inspectlink.Link{
		{S: 76561198084749846, A: 38350177313, D: 4631504735516729775},
		{M: 625254122282020305, A: 6760346663, D: 30614827701953021},
	} {
		got, err := inspectlink.Parse(l.Format())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
}

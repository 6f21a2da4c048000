package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestFieldNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{
			name: "whitelist account",
			got:  (&WhitelistAccount{UUID: "ab"}).Marshal(),
			want: []byte{0x0a, 0x02, 'a', 'b'},
		},
		{
			name: "change response failure",
			got:  (&ChangeAccountResponse{ErrorMessage: String("x")}).Marshal(),
			want: []byte{0x12, 0x01, 'x'},
		},
		{
			name: "change response success with account",
			got:  (&ChangeAccountResponse{Success: true, Account: &Account{IsMain: true}}).Marshal(),
			want: []byte{0x08, 0x01, 0x1a, 0x02, 0x18, 0x01},
		},
		{
			name: "removed event",
			got:  (&AccountChanged{UserID: String("u"), Change: ChangeRemoved}).Marshal(),
			want: []byte{0x0a, 0x01, 'u', 0x18, 0x01},
		},
		{
			name: "get response not found",
			got:  (&GetAccountResponse{}).Marshal(),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("encoding = %x, want %x", tt.got, tt.want)
			}
		})
	}
}

func TestAddAccountRequest_OptionalPresence(t *testing.T) {
	req := AddAccountRequest{
		UserID:            String(""),
		MinecraftUsername: "Steve",
	}

	var got AddAccountRequest
	require.NoError(t, got.Unmarshal(req.Marshal()))

	require.NotNil(t, got.UserID, "explicitly empty optional field must stay present")
	assert.Equal(t, "", *got.UserID)
	assert.Nil(t, got.DeprecatedDiscordID)
	assert.Nil(t, got.MinecraftUUID)
	assert.Equal(t, "Steve", got.MinecraftUsername)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := (&GetAccountRequest{MinecraftUUID: "abc-123"}).Marshal()
	b = protowire.AppendTag(b, 42, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)
	b = protowire.AppendTag(b, 43, protowire.BytesType)
	b = protowire.AppendString(b, "ignored")

	var got GetAccountRequest
	require.NoError(t, got.Unmarshal(b))
	assert.Equal(t, "abc-123", got.MinecraftUUID)
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated string", data: []byte{0x0a, 0x05, 'a'}},
		{name: "truncated tag", data: []byte{0x80}},
		{name: "wrong wire type", data: []byte{0x08, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req GetAccountRequest
			if err := req.Unmarshal(tt.data); err == nil {
				t.Fatalf("expected error for %x", tt.data)
			}
		})
	}
}

func TestListAccountsResponse_KeepsOrder(t *testing.T) {
	resp := ListAccountsResponse{
		UserID: "user-1",
		Accounts: []Account{
			{MinecraftUUID: "b", MinecraftUsername: "Bee", IsMain: true},
			{MinecraftUUID: "a", MinecraftUsername: "Ay", DeprecatedFirstName: "Deprecated"},
		},
	}

	var got ListAccountsResponse
	require.NoError(t, got.Unmarshal(resp.Marshal()))
	assert.Equal(t, resp, got)
}

func TestAccountChanged_Decode(t *testing.T) {
	ev := AccountChanged{
		DeprecatedDiscordID: String("disc-1"),
		Change:              ChangeAdded,
		Account:             &Account{MinecraftUUID: "abc-123", MinecraftUsername: "Steve", IsMain: true},
	}

	var got AccountChanged
	require.NoError(t, got.Unmarshal(ev.Marshal()))
	assert.Nil(t, got.UserID)
	assert.Equal(t, "disc-1", Value(got.DeprecatedDiscordID))
	assert.Equal(t, ChangeAdded, got.Change)
	assert.Equal(t, "ADDED", got.Change.String())
	require.NotNil(t, got.Account)
	assert.Equal(t, *ev.Account, *got.Account)
}

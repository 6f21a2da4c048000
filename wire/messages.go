package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Account is the public view of a Minecraft account binding.
type Account struct {
	MinecraftUUID       string // 1
	MinecraftUsername   string // 2
	IsMain              bool   // 3
	DeprecatedFirstName string // 4
}

func (m *Account) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.MinecraftUUID)
	b = appendString(b, 2, m.MinecraftUsername)
	b = appendBool(b, 3, m.IsMain)
	b = appendString(b, 4, m.DeprecatedFirstName)
	return b
}

func (m *Account) Unmarshal(b []byte) error {
	*m = Account{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.MinecraftUUID)
		case 2:
			return consumeString(typ, b, &m.MinecraftUsername)
		case 3:
			return consumeBool(typ, b, &m.IsMain)
		case 4:
			return consumeString(typ, b, &m.DeprecatedFirstName)
		}
		return 0, nil
	})
}

func consumeAccount(typ protowire.Type, b []byte, dst **Account) (int, error) {
	acc := &Account{}
	n, err := consumeMessage(typ, b, acc.Unmarshal)
	if err != nil {
		return 0, err
	}
	*dst = acc
	return n, nil
}

// AddAccountRequest is received on accounts.minecraft.add.
type AddAccountRequest struct {
	UserID              *string // 1
	DeprecatedDiscordID *string // 2
	MinecraftUsername   string  // 3
	MinecraftUUID       *string // 4
	FirstName           string  // 5
}

func (m *AddAccountRequest) Marshal() []byte {
	var b []byte
	b = appendOptionalString(b, 1, m.UserID)
	b = appendOptionalString(b, 2, m.DeprecatedDiscordID)
	b = appendString(b, 3, m.MinecraftUsername)
	b = appendOptionalString(b, 4, m.MinecraftUUID)
	b = appendString(b, 5, m.FirstName)
	return b
}

func (m *AddAccountRequest) Unmarshal(b []byte) error {
	*m = AddAccountRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeOptionalString(typ, b, &m.UserID)
		case 2:
			return consumeOptionalString(typ, b, &m.DeprecatedDiscordID)
		case 3:
			return consumeString(typ, b, &m.MinecraftUsername)
		case 4:
			return consumeOptionalString(typ, b, &m.MinecraftUUID)
		case 5:
			return consumeString(typ, b, &m.FirstName)
		}
		return 0, nil
	})
}

// RemoveAccountRequest is received on accounts.minecraft.remove.
// UserID is the caller key, matched against both owner columns.
type RemoveAccountRequest struct {
	UserID                      string  // 1
	MinecraftUUID               *string // 2
	DeprecatedMinecraftUsername *string // 3
}

func (m *RemoveAccountRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.UserID)
	b = appendOptionalString(b, 2, m.MinecraftUUID)
	b = appendOptionalString(b, 3, m.DeprecatedMinecraftUsername)
	return b
}

func (m *RemoveAccountRequest) Unmarshal(b []byte) error {
	*m = RemoveAccountRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.UserID)
		case 2:
			return consumeOptionalString(typ, b, &m.MinecraftUUID)
		case 3:
			return consumeOptionalString(typ, b, &m.DeprecatedMinecraftUsername)
		}
		return 0, nil
	})
}

// GetAccountRequest is received on accounts.minecraft.get.
type GetAccountRequest struct {
	MinecraftUUID string // 1
}

func (m *GetAccountRequest) Marshal() []byte {
	return appendString(nil, 1, m.MinecraftUUID)
}

func (m *GetAccountRequest) Unmarshal(b []byte) error {
	*m = GetAccountRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.MinecraftUUID)
		}
		return 0, nil
	})
}

// GetAccountResponse answers a GetAccountRequest.
type GetAccountResponse struct {
	AccountFound bool     // 1
	Account      *Account // 2
	ErrorMessage *string  // 3
}

func (m *GetAccountResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.AccountFound)
	if m.Account != nil {
		b = appendMessage(b, 2, m.Account.Marshal())
	}
	b = appendOptionalString(b, 3, m.ErrorMessage)
	return b
}

func (m *GetAccountResponse) Unmarshal(b []byte) error {
	*m = GetAccountResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.AccountFound)
		case 2:
			return consumeAccount(typ, b, &m.Account)
		case 3:
			return consumeOptionalString(typ, b, &m.ErrorMessage)
		}
		return 0, nil
	})
}

// ListAccountsRequest is received on accounts.minecraft.list.
type ListAccountsRequest struct {
	UserID string // 1
}

func (m *ListAccountsRequest) Marshal() []byte {
	return appendString(nil, 1, m.UserID)
}

func (m *ListAccountsRequest) Unmarshal(b []byte) error {
	*m = ListAccountsRequest{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.UserID)
		}
		return 0, nil
	})
}

// ListAccountsResponse answers a ListAccountsRequest.
type ListAccountsResponse struct {
	UserID       string    // 1
	Accounts     []Account // 2
	ErrorMessage *string   // 3
}

func (m *ListAccountsResponse) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.UserID)
	for i := range m.Accounts {
		b = appendMessage(b, 2, m.Accounts[i].Marshal())
	}
	b = appendOptionalString(b, 3, m.ErrorMessage)
	return b
}

func (m *ListAccountsResponse) Unmarshal(b []byte) error {
	*m = ListAccountsResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, b, &m.UserID)
		case 2:
			var acc Account
			n, err := consumeMessage(typ, b, acc.Unmarshal)
			if err != nil {
				return 0, err
			}
			m.Accounts = append(m.Accounts, acc)
			return n, nil
		case 3:
			return consumeOptionalString(typ, b, &m.ErrorMessage)
		}
		return 0, nil
	})
}

// ChangeAccountResponse answers add and remove requests.
type ChangeAccountResponse struct {
	Success      bool     // 1
	ErrorMessage *string  // 2
	Account      *Account // 3
}

func (m *ChangeAccountResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.Success)
	b = appendOptionalString(b, 2, m.ErrorMessage)
	if m.Account != nil {
		b = appendMessage(b, 3, m.Account.Marshal())
	}
	return b
}

func (m *ChangeAccountResponse) Unmarshal(b []byte) error {
	*m = ChangeAccountResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.Success)
		case 2:
			return consumeOptionalString(typ, b, &m.ErrorMessage)
		case 3:
			return consumeAccount(typ, b, &m.Account)
		}
		return 0, nil
	})
}

// ChangeType tags a change notification.
type ChangeType int32

const (
	ChangeAdded   ChangeType = 0
	ChangeRemoved ChangeType = 1
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "ADDED"
	case ChangeRemoved:
		return "REMOVED"
	default:
		return fmt.Sprintf("ChangeType(%d)", int32(c))
	}
}

// AccountChanged is broadcast on accounts.minecraft.changed after a successful mutation.
type AccountChanged struct {
	UserID              *string    // 1
	DeprecatedDiscordID *string    // 2
	Change              ChangeType // 3
	Account             *Account   // 4
}

func (m *AccountChanged) Marshal() []byte {
	var b []byte
	b = appendOptionalString(b, 1, m.UserID)
	b = appendOptionalString(b, 2, m.DeprecatedDiscordID)
	b = appendEnum(b, 3, int32(m.Change))
	if m.Account != nil {
		b = appendMessage(b, 4, m.Account.Marshal())
	}
	return b
}

func (m *AccountChanged) Unmarshal(b []byte) error {
	*m = AccountChanged{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeOptionalString(typ, b, &m.UserID)
		case 2:
			return consumeOptionalString(typ, b, &m.DeprecatedDiscordID)
		case 3:
			v, n, err := consumeVarint(typ, b)
			if err != nil {
				return 0, err
			}
			m.Change = ChangeType(int32(v))
			return n, nil
		case 4:
			return consumeAccount(typ, b, &m.Account)
		}
		return 0, nil
	})
}

// WhitelistAccount is sent on minecraft.whitelist.add and minecraft.whitelist.remove.
type WhitelistAccount struct {
	UUID string // 1
}

func (m *WhitelistAccount) Marshal() []byte {
	return appendString(nil, 1, m.UUID)
}

func (m *WhitelistAccount) Unmarshal(b []byte) error {
	*m = WhitelistAccount{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, b, &m.UUID)
		}
		return 0, nil
	})
}

// WhitelistResponse is the optional reply body of the whitelist service.
// Older whitelist services reply with an empty body.
type WhitelistResponse struct {
	Success      bool    // 1
	ErrorMessage *string // 2
}

func (m *WhitelistResponse) Marshal() []byte {
	var b []byte
	b = appendBool(b, 1, m.Success)
	b = appendOptionalString(b, 2, m.ErrorMessage)
	return b
}

func (m *WhitelistResponse) Unmarshal(b []byte) error {
	*m = WhitelistResponse{}
	return decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return consumeBool(typ, b, &m.Success)
		case 2:
			return consumeOptionalString(typ, b, &m.ErrorMessage)
		}
		return 0, nil
	})
}

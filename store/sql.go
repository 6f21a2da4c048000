package store

// accountColumns is the column list shared by every query returning a full row.
const accountColumns = `id, discord_id, user_id, minecraft_uuid, minecraft_username, is_main, first_name`

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	var discordID, userID, firstName *string
	if err := row.Scan(&a.ID, &discordID, &userID, &a.MinecraftUUID, &a.MinecraftUsername, &a.IsMain, &firstName); err != nil {
		return Account{}, err
	}
	if discordID != nil {
		a.Owner.DiscordID = *discordID
	}
	if userID != nil {
		a.Owner.UserID = *userID
	}
	if firstName != nil {
		a.DeprecatedFirstName = *firstName
	} else {
		a.DeprecatedFirstName = DeprecatedFirstNamePlaceholder
	}
	return a, nil
}

// nullable maps an unset owner key to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package importer

import (
	"fmt"
	"io"
)

// BitwardenParser parses Bitwarden CSV exports.
//
// Column layout:
// folder,favorite,type,name,notes,fields,reprompt,login_uri,login_username,login_password,login_totp
type BitwardenParser struct{}

const (
	bwColType     = "type"
	bwColName     = "name"
	bwColNotes    = "notes"
	bwColURI      = "login_uri"
	bwColUsername = "login_username"
	bwColPassword = "login_password"
	bwColTOTP     = "login_totp"

	bwTypeLogin = "login"
)

// Format returns the format this parser handles.
func (p *BitwardenParser) Format() Format {
	return FormatBitwarden
}

// Parse parses Bitwarden CSV data. Only login items become records;
// secure notes carry no credentials and are reported as skipped.
func (p *BitwardenParser) Parse(data []byte) (*Result, error) {
	t, err := newTable(data)
	if err != nil {
		return nil, err
	}
	if err := t.require(bwColType, bwColName, bwColPassword); err != nil {
		return nil, fmt.Errorf("not a bitwarden export: %w", err)
	}

	result := &Result{}
	for {
		row, rowNum, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.warn(rowNum, "unparsable row: %v", err)
			continue
		}

		name := t.get(row, bwColName)
		if kind := t.get(row, bwColType); kind != bwTypeLogin {
			result.skip(rowNum, name, fmt.Sprintf("not a login item (%s)", kind))
			continue
		}

		username := t.get(row, bwColUsername)
		password := t.get(row, bwColPassword)
		if username == "" && password == "" {
			result.skip(rowNum, name, "no credential data")
			continue
		}

		site := siteFor(t.get(row, bwColURI), name)
		if site == "" {
			result.skip(rowNum, name, "no usable site name")
			continue
		}

		memo := joinMemo(t.get(row, bwColNotes), totpMemo(t.get(row, bwColTOTP)))
		result.Records = append(result.Records, Record{
			Site:     site,
			Username: username,
			Password: password,
			Memo:     memo,
		})
	}
	return result, nil
}

// totpMemo preserves a TOTP seed in the memo; the vault schema has no
// dedicated field for it.
func totpMemo(seed string) string {
	if seed == "" {
		return ""
	}
	return "totp: " + seed
}

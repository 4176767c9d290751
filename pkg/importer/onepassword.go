package importer

import (
	"fmt"
	"io"
)

// OnePasswordParser parses 1Password CSV exports.
//
// Column layout:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

const (
	opColTitle    = "title"
	opColWebsite  = "website"
	opColUsername = "username"
	opColPassword = "password"
	opColOTPAuth  = "otpauth"
	opColArchived = "archived"
	opColNotes    = "notes"
)

// Format returns the format this parser handles.
func (p *OnePasswordParser) Format() Format {
	return Format1Password
}

// Parse parses 1Password CSV data. Archived items are skipped, not
// imported.
func (p *OnePasswordParser) Parse(data []byte) (*Result, error) {
	t, err := newTable(data)
	if err != nil {
		return nil, err
	}
	if err := t.require(opColTitle, opColUsername, opColPassword); err != nil {
		return nil, fmt.Errorf("not a 1password export: %w", err)
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

		title := t.get(row, opColTitle)
		if archived := t.get(row, opColArchived); archived == "true" {
			result.skip(rowNum, title, "archived")
			continue
		}

		username := t.get(row, opColUsername)
		password := t.get(row, opColPassword)
		if username == "" && password == "" {
			result.skip(rowNum, title, "no credential data")
			continue
		}

		site := siteFor(t.get(row, opColWebsite), title)
		if site == "" {
			result.skip(rowNum, title, "no usable site name")
			continue
		}

		memo := joinMemo(t.get(row, opColNotes), totpMemo(t.get(row, opColOTPAuth)))
		result.Records = append(result.Records, Record{
			Site:     site,
			Username: username,
			Password: password,
			Memo:     memo,
		})
	}
	return result, nil
}

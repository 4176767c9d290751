package importer

import (
	"fmt"
	"io"
)

// LastPassParser parses LastPass CSV exports.
//
// Column layout: url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"

	// LastPass marks secure notes with this pseudo-URL.
	lpSecureNoteURL = "http://sn"
)

// Format returns the format this parser handles.
func (p *LastPassParser) Format() Format {
	return FormatLastPass
}

// Parse parses LastPass CSV data. LastPass HTML-encodes special
// characters in its exports, so every cell is decoded first.
func (p *LastPassParser) Parse(data []byte) (*Result, error) {
	t, err := newTable(data)
	if err != nil {
		return nil, err
	}
	if err := t.require(lpColURL, lpColUsername, lpColPassword, lpColName); err != nil {
		return nil, fmt.Errorf("not a lastpass export: %w", err)
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

		get := func(col string) string {
			return DecodeHTMLEntities(t.get(row, col))
		}

		name := get(lpColName)
		loginURL := get(lpColURL)
		if loginURL == lpSecureNoteURL {
			loginURL = ""
		}

		username := get(lpColUsername)
		password := get(lpColPassword)
		if username == "" && password == "" {
			result.skip(rowNum, name, "no credential data")
			continue
		}

		site := siteFor(loginURL, name)
		if site == "" {
			result.skip(rowNum, name, "no usable site name")
			continue
		}

		memo := joinMemo(get(lpColExtra), totpMemo(get(lpColTOTP)))
		result.Records = append(result.Records, Record{
			Site:     site,
			Username: username,
			Password: password,
			Memo:     memo,
		})
	}
	return result, nil
}

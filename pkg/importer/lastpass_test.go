package importer

import (
	"testing"
)

const lastpassHeader = "url,username,password,totp,extra,name,grouping,fav\n"

func parseLastPass(t *testing.T, rows string) *Result {
	t.Helper()
	p := &LastPassParser{}
	result, err := p.Parse([]byte(lastpassHeader + rows))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return result
}

func TestLastPassParseLogin(t *testing.T) {
	result := parseLastPass(t,
		"https://www.netflix.com/login,fam@example.com,N3tfl1x!,,Family plan,Netflix,Streaming,0\n")

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	r := result.Records[0]
	if r.Site != "netflix" {
		t.Errorf("site = %q, want netflix", r.Site)
	}
	if r.Username != "fam@example.com" {
		t.Errorf("username = %q", r.Username)
	}
	if r.Password != "N3tfl1x!" {
		t.Errorf("password = %q", r.Password)
	}
	if r.Memo != "Family plan" {
		t.Errorf("memo = %q", r.Memo)
	}
}

func TestLastPassDecodesHTMLEntities(t *testing.T) {
	result := parseLastPass(t,
		"https://paypal.com,jo&amp;co@example.com,P&amp;P pass,,,PayPal,Finance,1\n")

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	r := result.Records[0]
	if r.Username != "jo&co@example.com" {
		t.Errorf("username = %q, want decoded ampersand", r.Username)
	}
	if r.Password != "P&P pass" {
		t.Errorf("password = %q, want decoded ampersand", r.Password)
	}
}

func TestLastPassSecureNoteFallsBackToName(t *testing.T) {
	// Secure notes use the pseudo-URL http://sn; with credentials
	// present the site must come from the record name, not from "sn".
	result := parseLastPass(t,
		"http://sn,admin,C0mbo!,,,Garage Keypad,Home,0\n")

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	if got := result.Records[0].Site; got != "garage keypad" {
		t.Errorf("site = %q, want garage keypad", got)
	}
}

func TestLastPassSkipsEmptyRows(t *testing.T) {
	result := parseLastPass(t,
		"http://sn,,,,just some text,Shopping List,Notes,0\n")

	if len(result.Records) != 0 {
		t.Fatalf("records = %d, want 0", len(result.Records))
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Reason != "no credential data" {
		t.Fatalf("skipped = %+v", result.Skipped)
	}
}

func TestLastPassTOTPGoesToMemo(t *testing.T) {
	result := parseLastPass(t,
		"https://ebay.com,jo,EbPass3,JBSWY3DP,,eBay,,0\n")

	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	if got := result.Records[0].Memo; got != "totp: JBSWY3DP" {
		t.Errorf("memo = %q", got)
	}
}

func TestLastPassRejectsWrongHeader(t *testing.T) {
	p := &LastPassParser{}
	_, err := p.Parse([]byte("Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes\n"))
	if err == nil {
		t.Fatal("expected error for non-lastpass header")
	}
}

package catalog

// defaultSites is the stock table a fresh install starts with. Aliases
// are spoken forms, so they include the spaced and run-together variants
// speech-to-text tends to produce.
var defaultSites = []Entry{
	{"gmail", []string{"gmail", "google mail", "googlemail", "g mail"}},
	{"google", []string{"google"}},
	{"facebook", []string{"facebook", "fb", "face book"}},
	{"amazon", []string{"amazon"}},
	{"netflix", []string{"netflix", "net flix"}},
	{"youtube", []string{"youtube", "you tube"}},
	{"twitter", []string{"twitter"}},
	{"instagram", []string{"instagram", "insta"}},
	{"linkedin", []string{"linkedin", "linked in"}},
	{"paypal", []string{"paypal", "pay pal"}},
	{"ebay", []string{"ebay", "e bay"}},
	{"spotify", []string{"spotify"}},
	{"apple", []string{"apple", "apple id"}},
	{"microsoft", []string{"microsoft"}},
	{"bank", []string{"bank", "my bank", "banking", "online banking"}},
	{"email", []string{"email", "e mail", "mail"}},
	{"social", []string{"social", "social media"}},
	{"shopping", []string{"shopping", "online shopping"}},
	{"entertainment", []string{"entertainment"}},
	{"news", []string{"news"}},
}

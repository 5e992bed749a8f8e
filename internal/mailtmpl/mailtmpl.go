// Package mailtmpl substitutes {token} placeholders in operator written mail
// templates. Unknown tokens and stray braces are left as written.
package mailtmpl

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	TokenUserLogin    = "{user_login}"
	TokenUserEmail    = "{user_email}"
	TokenLoginURL     = "{login_url}"
	TokenHomeURL      = "{home_url}"
	TokenProfileURL   = "{profile_url}"
	TokenSiteTitle    = "{site_title}"
	TokenResetPassURL = "{resetpass_url}"
	TokenUserIP       = "{user_ip}"
)

// Site holds the values shared by every message.
type Site struct {
	Title    string
	HomeURL  string
	LoginURL string
}

// Vars are the per recipient values. Empty ResetPassURL or UserIP leave their
// tokens untouched. An empty Nicename falls back to Slug(UserLogin).
type Vars struct {
	UserLogin    string
	UserEmail    string
	Nicename     string
	ResetPassURL string
	UserIP       string
}

// Message is a rendered plain text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// ProfileURL is the member page for the nicename slug under the site home.
func (s Site) ProfileURL(slug string) string {
	return strings.TrimRight(s.HomeURL, "/") + "/members/" + url.PathEscape(slug) + "/"
}

const maxSlugLen = 50

// Slug derives the nicename the site gives login: accents stripped, lower
// case, dots and whitespace turned into dashes, other characters outside
// [a-z0-9_-] dropped, dash runs collapsed and trimmed.
func Slug(login string) string {
	plain, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), login)
	if err != nil {
		plain = login
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			dash = false
		case r == '-', r == '.', unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

func (v Vars) profileSlug() string {
	if v.Nicename != "" {
		return v.Nicename
	}
	return Slug(v.UserLogin)
}

// ResetPassURL builds the link that lets login choose a new password with key.
func (s Site) ResetPassURL(login, key string) string {
	q := url.Values{}
	q.Set("action", "rp")
	q.Set("key", key)
	q.Set("login", login)

	sep := "?"
	if strings.Contains(s.LoginURL, "?") {
		sep = "&"
	}
	return s.LoginURL + sep + q.Encode()
}

// Render replaces every known token in tpl in a single pass, so substituted
// values are never themselves expanded.
func (s Site) Render(tpl string, v Vars) string {
	pairs := []string{
		TokenUserLogin, v.UserLogin,
		TokenUserEmail, v.UserEmail,
		TokenLoginURL, s.LoginURL,
		TokenHomeURL, s.HomeURL,
		TokenProfileURL, s.ProfileURL(v.profileSlug()),
		TokenSiteTitle, s.Title,
	}
	if v.ResetPassURL != "" {
		pairs = append(pairs, TokenResetPassURL, v.ResetPassURL)
	}
	if v.UserIP != "" {
		pairs = append(pairs, TokenUserIP, v.UserIP)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// NeedsResetKey reports whether rendering any of tpls requires a reset link.
func NeedsResetKey(tpls ...string) bool {
	for _, tpl := range tpls {
		if strings.Contains(tpl, TokenResetPassURL) {
			return true
		}
	}
	return false
}
